package service

import (
	"context"

	"rentguard/internal/booking/models"
	id "rentguard/pkg/domain"
)

// HandleAdvance validates an inbound advance request and runs its
// verification.
func (s *Service) HandleAdvance(ctx context.Context, req models.AdvanceBookingRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	bookingID, err := id.ParseBookingID(req.BookingID)
	if err != nil {
		return nil, err
	}
	t, err := models.ParseTransition(req.Transition)
	if err != nil {
		return nil, err
	}
	return s.VerifyAndAdvance(ctx, bookingID, t)
}

func (s *Service) HandleCancel(ctx context.Context, req models.CancelBookingRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	bookingID, err := id.ParseBookingID(req.BookingID)
	if err != nil {
		return nil, err
	}
	return s.Cancel(ctx, bookingID, req.Actor())
}

func (s *Service) HandleDispute(ctx context.Context, req models.RaiseDisputeRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	bookingID, err := id.ParseBookingID(req.BookingID)
	if err != nil {
		return nil, err
	}
	return s.RaiseDispute(ctx, bookingID, req.Actor(), req.Reason, req.Evidence)
}
