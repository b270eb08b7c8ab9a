package models

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	dErrors "rentguard/pkg/domain-errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateBookingRequest is the inbound DTO for a new reservation.
type CreateBookingRequest struct {
	TenantID   string    `json:"tenant_id" validate:"required,max=128"`
	PropertyID string    `json:"property_id" validate:"required,max=128"`
	CheckIn    time.Time `json:"check_in" validate:"required"`
	CheckOut   time.Time `json:"check_out" validate:"required"`
}

func (r *CreateBookingRequest) Validate() error { return validateStruct(r) }

// AdvanceBookingRequest asks to run the verification for a forward transition.
type AdvanceBookingRequest struct {
	BookingID  string `json:"booking_id" validate:"required,numeric"`
	Transition string `json:"transition" validate:"required,oneof=verify_identity confirm_availability activate_escrow"`
}

func (r *AdvanceBookingRequest) Validate() error { return validateStruct(r) }

type CancelBookingRequest struct {
	BookingID string `json:"booking_id" validate:"required,numeric"`
	ActorID   string `json:"actor_id" validate:"required,max=128"`
	Role      string `json:"role" validate:"required,oneof=tenant host system"`
}

func (r *CancelBookingRequest) Validate() error { return validateStruct(r) }

func (r *CancelBookingRequest) Actor() Actor { return Actor{ID: r.ActorID, Role: Role(r.Role)} }

type RaiseDisputeRequest struct {
	BookingID string   `json:"booking_id" validate:"required,numeric"`
	ActorID   string   `json:"actor_id" validate:"required,max=128"`
	Role      string   `json:"role" validate:"required,oneof=tenant host"`
	Reason    string   `json:"reason" validate:"max=2000"`
	Evidence  []string `json:"evidence" validate:"max=20,dive,required,max=512"`
}

func (r *RaiseDisputeRequest) Validate() error { return validateStruct(r) }

func (r *RaiseDisputeRequest) Actor() Actor { return Actor{ID: r.ActorID, Role: Role(r.Role)} }

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "max":
		return field + " is too long"
	case "numeric":
		return field + " must be numeric"
	default:
		return field + " is invalid"
	}
}
