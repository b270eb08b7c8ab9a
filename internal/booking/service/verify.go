package service

import (
	"context"
	"errors"

	"rentguard/internal/booking/models"
	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	id "rentguard/pkg/domain"
	dErrors "rentguard/pkg/domain-errors"
)

// VerifyAndAdvance runs the verification behind a forward transition and
// applies it. The provider call runs without holding the booking lock; if
// the booking changed meanwhile the call fails as stale.
func (s *Service) VerifyAndAdvance(ctx context.Context, bookingID id.BookingID, t models.Transition) (*models.Booking, error) {
	if t == models.TransitionResolve {
		return s.ResolveDispute(ctx, bookingID, nil)
	}
	rule, ok := t.Rule()
	if !ok || rule.Proof == "" {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s is not a verification transition", t)
	}
	snapshot, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if awaiting(snapshot, t) {
		return s.RecoverPending(ctx, bookingID)
	}
	if err := snapshot.CanApply(t); err != nil {
		return nil, err
	}

	p, err := s.verify(ctx, snapshot, requestFor(snapshot, rule.Proof))
	if err != nil {
		return nil, err
	}
	return s.advance(ctx, bookingID, t, p, snapshot.Version)
}

// ResolveDispute asks the resolution provider for a verdict on the
// booking's dispute and records it. extraEvidence is appended to the
// evidence given when the dispute was raised.
func (s *Service) ResolveDispute(ctx context.Context, bookingID id.BookingID, extraEvidence []string) (*models.Booking, error) {
	snapshot, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if awaiting(snapshot, models.TransitionResolve) {
		return s.RecoverPending(ctx, bookingID)
	}
	if err := snapshot.CanApply(models.TransitionResolve); err != nil {
		return nil, err
	}
	if snapshot.Dispute == nil {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "booking %s is disputed without a dispute record", bookingID)
	}
	evidence := append(append([]string(nil), snapshot.Dispute.Evidence...), extraEvidence...)
	p, err := s.verify(ctx, snapshot, providers.ResolutionRequest{
		Subject:   snapshot.Subject(),
		DisputeID: snapshot.Dispute.ID,
		Evidence:  evidence,
	})
	if err != nil {
		return nil, err
	}
	return s.recordDispute(ctx, bookingID, p, snapshot.Version)
}

func requestFor(b *models.Booking, kind proof.Kind) providers.Request {
	subject := b.Subject()
	switch kind {
	case proof.KindIdentity:
		return providers.IdentityRequest{Subject: subject, SubjectID: string(b.TenantID)}
	case proof.KindAvailability:
		return providers.AvailabilityRequest{Subject: subject}
	case proof.KindEscrow:
		return providers.EscrowRequest{Subject: subject, Amount: b.DepositAmount}
	}
	return providers.ResolutionRequest{Subject: subject}
}

// verify calls the gateway and returns the proof of a passing result.
func (s *Service) verify(ctx context.Context, b *models.Booking, req providers.Request) (*proof.Proof, error) {
	if s.gateways == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "no verification gateways configured")
	}
	res, err := s.gateways.Verify(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "verification failed",
			"booking_id", b.ID,
			"kind", req.Kind(),
			"error", err,
		)
		return nil, translateProviderErr(err)
	}
	if !res.Passed {
		s.logger.InfoContext(ctx, "verification rejected",
			"booking_id", b.ID,
			"kind", req.Kind(),
			"provider_id", res.ProviderID,
		)
		return nil, dErrors.Newf(dErrors.CodeRejected, "%s check did not pass for booking %s", req.Kind(), b.ID)
	}
	if res.Proof == nil {
		return nil, dErrors.Newf(dErrors.CodeInternal, "%s provider passed without a proof", req.Kind())
	}
	return res.Proof, nil
}

func translateProviderErr(err error) error {
	if errors.Is(err, providers.ErrProviderNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "no provider for verification kind")
	}
	switch providers.GetCategory(err) {
	case providers.ErrorTimeout:
		return dErrors.Wrap(err, dErrors.CodeTimeout, "verification timed out")
	case providers.ErrorAuthentication, providers.ErrorContractMismatch:
		return dErrors.Wrap(err, dErrors.CodeInternal, "verification provider misconfigured")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "verification provider unavailable")
}
