// Package service is the booking state machine: the single authority that
// moves a booking through its lifecycle. Transitions run inside the
// registry's per-booking update, provider calls run outside it, and ledger
// intents are bracketed by a pending marker so no other transition can
// start while funds are moving.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rentguard/internal/booking/catalog"
	"rentguard/internal/booking/metrics"
	"rentguard/internal/booking/models"
	"rentguard/internal/booking/store"
	"rentguard/internal/ledger"
	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	id "rentguard/pkg/domain"
	dErrors "rentguard/pkg/domain-errors"
	audit "rentguard/pkg/platform/audit"
	"rentguard/pkg/platform/sentinel"
	"rentguard/pkg/requestcontext"
)

type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) (*models.Booking, error)
	Get(ctx context.Context, bookingID id.BookingID) (*models.Booking, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Booking, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Booking, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Booking, error)
	Update(ctx context.Context, bookingID id.BookingID, fn store.UpdateFunc) (*models.Booking, error)
}

// Gateways runs verification requests; gateway.Set satisfies it.
type Gateways interface {
	Verify(ctx context.Context, req providers.Request) (*providers.Result, error)
}

type Ledger interface {
	LockDeposit(ctx context.Context, intent ledger.Intent) (*ledger.Receipt, error)
	Settle(ctx context.Context, intent ledger.Intent) (*ledger.Receipt, error)
}

type Service struct {
	store    BookingStore
	catalog  catalog.Catalog
	verifier proof.Verifier
	ledger   Ledger
	gateways Gateways
	policy   Policy
	audit    audit.Emitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
}

type Option func(*Service)

func WithGateways(g Gateways) Option {
	return func(s *Service) { s.gateways = g }
}

func WithPolicy(p Policy) Option {
	return func(s *Service) {
		if p.Degraded == nil {
			p.Degraded = StrictDegradedPolicy()
		}
		if p.Split == nil {
			p.Split = DefaultSplit
		}
		s.policy = p
	}
}

func WithAuditPublisher(e audit.Emitter) Option {
	return func(s *Service) {
		if e != nil {
			s.audit = e
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used when the request context carries no
// pinned time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// New constructs a Service. verifier checks proof signatures; it must trust
// every provider issuer and the fallback signer.
func New(bookings BookingStore, listings catalog.Catalog, verifier proof.Verifier, l Ledger, opts ...Option) *Service {
	s := &Service{
		store:    bookings,
		catalog:  listings,
		verifier: verifier,
		ledger:   l,
		policy:   DefaultPolicy(),
		audit:    audit.Nop{},
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request creates a booking in Requested. The overlap check and the insert
// are atomic per property.
func (s *Service) Request(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		s.metrics.IncRequest(metrics.ResultInvalid)
		return nil, err
	}
	tenantID, err := id.ParseTenantID(req.TenantID)
	if err != nil {
		s.metrics.IncRequest(metrics.ResultInvalid)
		return nil, err
	}
	propertyID, err := id.ParsePropertyID(req.PropertyID)
	if err != nil {
		s.metrics.IncRequest(metrics.ResultInvalid)
		return nil, err
	}
	now := s.now(ctx)
	dates, err := models.NewDateRange(req.CheckIn, req.CheckOut, now)
	if err != nil {
		s.metrics.IncRequest(metrics.ResultInvalid)
		return nil, err
	}
	listing, err := s.catalog.Lookup(ctx, propertyID)
	if err != nil {
		s.metrics.IncRequest(metrics.ResultInvalid)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown property %s", propertyID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "property catalog unavailable")
	}

	b, err := models.NewBooking(tenantID, propertyID, listing.HostID, dates, listing.DepositAmount, now)
	if err != nil {
		s.metrics.IncRequest(metrics.ResultInvalid)
		return nil, err
	}
	created, err := s.store.Create(ctx, b)
	if err != nil {
		if errors.Is(err, store.ErrOverlap) {
			s.metrics.IncRequest(metrics.ResultOverlap)
			return nil, dErrors.Newf(dErrors.CodeOverlap, "property %s is already booked for part of %s..%s",
				propertyID, dates.CheckIn.Format(time.DateOnly), dates.CheckOut.Format(time.DateOnly))
		}
		s.metrics.IncRequest(metrics.ResultError)
		return nil, translateStoreErr(err, "create booking")
	}

	s.metrics.IncRequest(metrics.ResultCreated)
	s.logger.InfoContext(ctx, "booking requested",
		"booking_id", created.ID,
		"tenant_id", created.TenantID,
		"property_id", created.PropertyID,
	)
	s.emit(ctx, audit.Event{
		Type:       audit.EventBookingRequested,
		BookingID:  created.ID,
		TenantID:   created.TenantID,
		PropertyID: created.PropertyID,
		To:         string(created.Status),
		Actor:      models.Actor{ID: string(created.TenantID), Role: models.RoleTenant}.String(),
		Amount:     created.DepositAmount,
	})
	return created, nil
}

func (s *Service) Get(ctx context.Context, bookingID id.BookingID) (*models.Booking, error) {
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, translateStoreErr(err, "load booking")
	}
	return b, nil
}

func (s *Service) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Booking, error) {
	out, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, translateStoreErr(err, "list bookings")
	}
	return out, nil
}

func (s *Service) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Booking, error) {
	out, err := s.store.ListByProperty(ctx, propertyID)
	if err != nil {
		return nil, translateStoreErr(err, "list bookings")
	}
	return out, nil
}

// AuditReport is the result of re-verifying a booking's proof chain.
type AuditReport struct {
	BookingID         id.BookingID  `json:"booking_id"`
	Status            models.Status `json:"status"`
	Proofs            int           `json:"proofs"`
	VerificationHash  proof.Hash    `json:"verification_hash"`
	VerificationLevel string        `json:"verification_level"`
	ConfirmationCode  string        `json:"confirmation_code"`
}

// Audit re-verifies every proof signature and recomputes the whole chain.
// A mismatch is an invariant violation: the stored record was tampered with.
func (s *Service) Audit(ctx context.Context, bookingID id.BookingID) (*AuditReport, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := proof.VerifyChain(b.Proofs, b.VerificationHash, s.verifier); err != nil {
		s.logger.ErrorContext(ctx, "booking proof chain failed verification",
			"booking_id", bookingID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "proof chain does not verify")
	}
	return &AuditReport{
		BookingID:         b.ID,
		Status:            b.Status,
		Proofs:            len(b.Proofs),
		VerificationHash:  b.VerificationHash,
		VerificationLevel: b.VerificationLevel(),
		ConfirmationCode:  b.ConfirmationCode(),
	}, nil
}

func (s *Service) now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestcontext.ContextKeyRequestTime).(time.Time); ok {
		return t.UTC()
	}
	return s.clock().UTC()
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"event_type", event.Type,
			"booking_id", event.BookingID,
			"error", err,
		)
	}
}

// translateStoreErr maps registry sentinels onto domain codes. Coded errors
// returned from inside an update pass through.
func translateStoreErr(err error, op string) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "booking not found")
	case errors.Is(err, store.ErrOverlap):
		return dErrors.Wrap(err, dErrors.CodeOverlap, op)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, op)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, op)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, op)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, op)
}
