package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rentguard/internal/booking/metrics"
	"rentguard/internal/booking/models"
	"rentguard/internal/ledger"
	"rentguard/internal/proof"
	id "rentguard/pkg/domain"
	dErrors "rentguard/pkg/domain-errors"
	audit "rentguard/pkg/platform/audit"
)

// SettlementStayCompleted is the settlement outcome of an undisputed stay.
const SettlementStayCompleted = "stay_completed"

// errAlreadyApplied aborts an update whose transition another caller has
// already finished with the same intent.
var errAlreadyApplied = errors.New("transition already applied")

// Advance applies a proof-driven transition. Resolve is routed to
// RecordDispute; transitions without a proof have their own operations.
func (s *Service) Advance(ctx context.Context, bookingID id.BookingID, t models.Transition, p *proof.Proof) (*models.Booking, error) {
	rule, ok := t.Rule()
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown transition %q", t)
	}
	if t == models.TransitionResolve {
		return s.RecordDispute(ctx, bookingID, p)
	}
	if rule.Proof == "" {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s is not driven by a proof", t)
	}
	if rule.Ledger != models.LedgerNone {
		current, err := s.Get(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if awaiting(current, t) {
			return s.RecoverPending(ctx, bookingID)
		}
	}
	return s.advance(ctx, bookingID, t, p, 0)
}

// advance runs t under the booking lock. A non-zero expectVersion rejects
// the call as stale when the booking changed since the caller's snapshot.
func (s *Service) advance(ctx context.Context, bookingID id.BookingID, t models.Transition, p *proof.Proof, expectVersion uint64) (*models.Booking, error) {
	start := time.Now()
	rule, _ := t.Rule()
	now := s.now(ctx)

	var from models.Status
	updated, err := s.store.Update(ctx, bookingID, func(b *models.Booking) error {
		if err := checkVersion(b, expectVersion); err != nil {
			return err
		}
		if err := b.CanApply(t); err != nil {
			return err
		}
		if err := s.checkProof(b, rule.Proof, p, now); err != nil {
			return err
		}
		from = b.Status
		if rule.Ledger != models.LedgerNone {
			b.BeginIntent(models.PendingIntent{
				Token:      uuid.NewString(),
				Transition: t,
				Intent:     rule.Ledger,
				Proof:      p,
			}, now)
			return nil
		}
		b.ApplyTransition(t, p, actorFor(p), now)
		return nil
	})
	if err != nil {
		s.proofRejected(ctx, bookingID, t, p, err)
		return nil, translateStoreErr(err, "advance booking")
	}
	if updated.Pending != nil {
		return s.runIntent(ctx, updated, start)
	}
	s.committed(ctx, from, updated, t, p, start)
	return updated, nil
}

// checkProof validates p for a transition requiring kind, against the
// booking's current data.
func (s *Service) checkProof(b *models.Booking, kind proof.Kind, p *proof.Proof, now time.Time) error {
	err := proof.Validate(p, proof.Expectation{
		Kind:          kind,
		Subject:       b.Subject().Hash(kind),
		Now:           now,
		AllowDegraded: s.policy.Degraded.Allows(kind),
	}, s.verifier)
	if err != nil {
		if errors.Is(err, proof.ErrExpired) {
			return dErrors.Wrap(err, dErrors.CodeExpired, "proof expired")
		}
		return dErrors.Wrap(err, dErrors.CodeInvalidProof, "proof rejected")
	}

	switch kind {
	case proof.KindIdentity:
		if !p.Claims.Bool(proof.ClaimVerified) {
			return dErrors.New(dErrors.CodeInvalidProof, "identity proof does not attest a verified tenant")
		}
	case proof.KindAvailability:
		if !p.Claims.Bool(proof.ClaimAvailable) {
			return dErrors.New(dErrors.CodeInvalidProof, "availability proof does not attest free dates")
		}
	case proof.KindEscrow:
		if !p.Claims.Bool(proof.ClaimAuthorized) {
			return dErrors.New(dErrors.CodeInvalidProof, "escrow proof does not authorize the deposit")
		}
		amount, err := p.Claims.Int64(proof.ClaimAmount)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidProof, "escrow proof amount")
		}
		if amount != b.DepositAmount {
			return dErrors.Newf(dErrors.CodeInvalidProof, "escrow proof authorizes %d, deposit is %d", amount, b.DepositAmount)
		}
	}
	return nil
}

// Cancel moves a Requested or Confirmed booking to Cancelled. Only the
// tenant, the host or the system may cancel.
func (s *Service) Cancel(ctx context.Context, bookingID id.BookingID, actor models.Actor) (*models.Booking, error) {
	start := time.Now()
	now := s.now(ctx)
	var from models.Status
	updated, err := s.store.Update(ctx, bookingID, func(b *models.Booking) error {
		if err := b.RequireParty(actor); err != nil {
			return err
		}
		if err := b.CanApply(models.TransitionCancel); err != nil {
			return err
		}
		from = b.Status
		b.ApplyTransition(models.TransitionCancel, nil, actor, now)
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err, "cancel booking")
	}
	s.committed(ctx, from, updated, models.TransitionCancel, nil, start)
	return updated, nil
}

// RaiseDispute moves an Active booking to Disputed. The tenant or the host
// may raise it until the dispute window after checkout closes.
func (s *Service) RaiseDispute(ctx context.Context, bookingID id.BookingID, actor models.Actor, reason string, evidence []string) (*models.Booking, error) {
	if actor.Role != models.RoleTenant && actor.Role != models.RoleHost {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "%s may not raise a dispute", actor)
	}
	start := time.Now()
	now := s.now(ctx)
	var from models.Status
	updated, err := s.store.Update(ctx, bookingID, func(b *models.Booking) error {
		if err := b.RequireParty(actor); err != nil {
			return err
		}
		if err := b.CanApply(models.TransitionDispute); err != nil {
			return err
		}
		if closes := b.Dates.CheckOut.Add(s.policy.DisputeWindow); !now.Before(closes) {
			return dErrors.Newf(dErrors.CodeExpired, "dispute window closed at %s", closes.Format(time.RFC3339))
		}
		from = b.Status
		b.Dispute = &models.Dispute{
			ID:       uuid.NewString(),
			RaisedBy: actor,
			Reason:   reason,
			Evidence: append([]string(nil), evidence...),
			RaisedAt: now,
		}
		b.ApplyTransition(models.TransitionDispute, nil, actor, now)
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err, "raise dispute")
	}
	s.committed(ctx, from, updated, models.TransitionDispute, nil, start)
	return updated, nil
}

// RecordDispute applies a resolution proof to a Disputed booking: the
// verdict is turned into a split, settled on the ledger, and the booking
// completes.
func (s *Service) RecordDispute(ctx context.Context, bookingID id.BookingID, p *proof.Proof) (*models.Booking, error) {
	return s.recordDispute(ctx, bookingID, p, 0)
}

func (s *Service) recordDispute(ctx context.Context, bookingID id.BookingID, p *proof.Proof, expectVersion uint64) (*models.Booking, error) {
	start := time.Now()
	now := s.now(ctx)
	updated, err := s.store.Update(ctx, bookingID, func(b *models.Booking) error {
		if err := checkVersion(b, expectVersion); err != nil {
			return err
		}
		if err := b.CanApply(models.TransitionResolve); err != nil {
			return err
		}
		if err := s.checkProof(b, proof.KindResolution, p, now); err != nil {
			return err
		}
		outcome, split, err := s.verdict(b, p)
		if err != nil {
			return err
		}
		b.BeginIntent(models.PendingIntent{
			Token:      uuid.NewString(),
			Transition: models.TransitionResolve,
			Intent:     models.LedgerSettle,
			Proof:      p,
			Split:      &split,
			Outcome:    string(outcome),
		}, now)
		return nil
	})
	if err != nil {
		s.proofRejected(ctx, bookingID, models.TransitionResolve, p, err)
		return nil, translateStoreErr(err, "record dispute")
	}
	return s.runIntent(ctx, updated, start)
}

// verdict reads the signed resolution claims and applies the split policy.
func (s *Service) verdict(b *models.Booking, p *proof.Proof) (proof.Outcome, models.Split, error) {
	if b.Dispute == nil {
		return "", models.Split{}, dErrors.Newf(dErrors.CodeInvariantViolation, "booking %s is disputed without a dispute record", b.ID)
	}
	if got, _ := p.Claim(proof.ClaimDisputeID); got != b.Dispute.ID {
		return "", models.Split{}, dErrors.Newf(dErrors.CodeInvalidProof, "resolution proof is for dispute %q", got)
	}
	raw, _ := p.Claim(proof.ClaimOutcome)
	outcome, err := proof.ParseOutcome(raw)
	if err != nil {
		return "", models.Split{}, dErrors.Wrap(err, dErrors.CodeInvalidProof, "resolution outcome")
	}
	refund, err := p.Claims.Int64(proof.ClaimRefundAmount)
	if err != nil {
		return "", models.Split{}, dErrors.Wrap(err, dErrors.CodeInvalidProof, "resolution refund")
	}
	split, err := s.policy.Split(outcome, refund, b.DepositAmount)
	if err != nil {
		return "", models.Split{}, dErrors.Wrap(err, dErrors.CodeInvalidProof, "resolution split")
	}
	if split.Total() != b.DepositAmount {
		return "", models.Split{}, dErrors.Newf(dErrors.CodeInvariantViolation, "split %+v does not cover deposit %d", split, b.DepositAmount)
	}
	return outcome, split, nil
}

// Complete settles an undisputed stay once its dispute window has closed,
// paying the whole deposit to the host.
func (s *Service) Complete(ctx context.Context, bookingID id.BookingID) (*models.Booking, error) {
	current, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if awaiting(current, models.TransitionComplete) {
		return s.RecoverPending(ctx, bookingID)
	}
	start := time.Now()
	now := s.now(ctx)
	updated, err := s.store.Update(ctx, bookingID, func(b *models.Booking) error {
		if err := b.CanApply(models.TransitionComplete); err != nil {
			return err
		}
		if closes := b.Dates.CheckOut.Add(s.policy.DisputeWindow); now.Before(closes) {
			return dErrors.Newf(dErrors.CodeIllegalTransition, "booking %s cannot complete before %s", b.ID, closes.Format(time.RFC3339))
		}
		split := models.Split{HostPayout: b.DepositAmount}
		b.BeginIntent(models.PendingIntent{
			Token:      uuid.NewString(),
			Transition: models.TransitionComplete,
			Intent:     models.LedgerSettle,
			Split:      &split,
			Outcome:    SettlementStayCompleted,
		}, now)
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err, "complete booking")
	}
	return s.runIntent(ctx, updated, start)
}

// CompleteElapsed completes every Active booking whose dispute window has
// closed. Bookings another caller moved first are skipped.
func (s *Service) CompleteElapsed(ctx context.Context) (int, error) {
	active, err := s.store.ListByStatus(ctx, models.StatusActive)
	if err != nil {
		return 0, translateStoreErr(err, "list active bookings")
	}
	now := s.now(ctx)
	var (
		completed int
		errs      []error
	)
	for _, b := range active {
		if b.Pending != nil || now.Before(b.Dates.CheckOut.Add(s.policy.DisputeWindow)) {
			continue
		}
		if _, err := s.Complete(ctx, b.ID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeStale) || dErrors.HasCode(err, dErrors.CodeIllegalTransition) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		completed++
	}
	s.metrics.IncSweeperCompletions(completed)
	return completed, errors.Join(errs...)
}

// RecoverPending re-issues the ledger intent a booking is waiting on and
// finishes or abandons its transition. A booking with nothing in flight is
// returned unchanged.
func (s *Service) RecoverPending(ctx context.Context, bookingID id.BookingID) (*models.Booking, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Pending == nil {
		return b, nil
	}
	s.logger.WarnContext(ctx, "recovering stalled ledger intent",
		"booking_id", b.ID,
		"transition", b.Pending.Transition,
		"since", b.Pending.Since,
	)
	return s.runIntent(ctx, b, time.Now())
}

// RecoverStalled runs RecoverPending for every booking whose intent has
// been in flight longer than the pending timeout.
func (s *Service) RecoverStalled(ctx context.Context) (int, error) {
	now := s.now(ctx)
	var (
		recovered int
		errs      []error
	)
	for _, status := range []models.Status{models.StatusConfirmed, models.StatusActive, models.StatusDisputed} {
		bookings, err := s.store.ListByStatus(ctx, status)
		if err != nil {
			return recovered, translateStoreErr(err, "list bookings")
		}
		for _, b := range bookings {
			if b.Pending == nil || now.Sub(b.Pending.Since) < s.policy.PendingTimeout {
				continue
			}
			if _, err := s.RecoverPending(ctx, b.ID); err != nil {
				if !dErrors.HasCode(err, dErrors.CodeStale) {
					errs = append(errs, err)
				}
				continue
			}
			recovered++
		}
	}
	return recovered, errors.Join(errs...)
}

// runIntent issues the ledger call for b's pending intent outside the
// booking lock and applies the transition once it commits. The marker is
// cleared only when the ledger definitely refused the intent; after a
// timeout or outage it stays, so the booking cannot move elsewhere until a
// retry or RecoverStalled learns the outcome.
func (s *Service) runIntent(ctx context.Context, b *models.Booking, start time.Time) (*models.Booking, error) {
	pending := *b.Pending
	intent := ledgerIntent(b, pending)

	var (
		receipt *ledger.Receipt
		err     error
	)
	switch intent.Type {
	case ledger.IntentLockDeposit:
		receipt, err = s.ledger.LockDeposit(ctx, intent)
	default:
		receipt, err = s.ledger.Settle(ctx, intent)
	}
	if err != nil {
		s.metrics.IncLedgerIntent(string(intent.Type), metrics.LedgerFailed)
		s.logger.ErrorContext(ctx, "ledger intent failed",
			"booking_id", b.ID,
			"transition", pending.Transition,
			"intent", intent.Type,
			"error", err,
		)
		if ledger.Definite(err) {
			s.abandonIntent(ctx, b.ID, pending.Token)
		}
		return nil, translateLedgerErr(err)
	}
	result := metrics.LedgerCommitted
	if receipt.Replayed {
		result = metrics.LedgerReplayed
	}
	s.metrics.IncLedgerIntent(string(intent.Type), result)
	return s.finishIntent(ctx, b.ID, pending, receipt, start)
}

func ledgerIntent(b *models.Booking, pending models.PendingIntent) ledger.Intent {
	if pending.Intent == models.LedgerLock {
		return ledger.LockIntent(b.ID, b.DepositAmount)
	}
	var split ledger.Split
	if pending.Split != nil {
		split = ledger.Split{TenantRefund: pending.Split.TenantRefund, HostPayout: pending.Split.HostPayout}
	}
	return ledger.SettleIntent(b.ID, split)
}

// finishIntent commits the transition whose ledger call succeeded. The
// funds already moved, so the write ignores caller cancellation.
func (s *Service) finishIntent(ctx context.Context, bookingID id.BookingID, pending models.PendingIntent, receipt *ledger.Receipt, start time.Time) (*models.Booking, error) {
	ctx = context.WithoutCancel(ctx)
	now := s.now(ctx)
	rule, _ := pending.Transition.Rule()

	var from models.Status
	updated, err := s.store.Update(ctx, bookingID, func(b *models.Booking) error {
		if b.Pending == nil || b.Pending.Token != pending.Token {
			if b.Status == rule.To && lastTransition(b) == pending.Transition {
				return errAlreadyApplied
			}
			return dErrors.Newf(dErrors.CodeStale, "booking %s no longer awaits this %s", b.ID, pending.Intent)
		}
		from = b.Status
		b.ApplyTransition(pending.Transition, pending.Proof, actorFor(pending.Proof), now)
		switch pending.Intent {
		case models.LedgerLock:
			b.EscrowReference = receipt.Reference
		case models.LedgerSettle:
			b.Settlement = &models.Settlement{
				Outcome:   pending.Outcome,
				Split:     *pending.Split,
				Reference: receipt.Reference,
				SettledAt: now,
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		return s.Get(ctx, bookingID)
	}
	if err != nil {
		return nil, translateStoreErr(err, "apply ledger result")
	}
	s.committed(ctx, from, updated, pending.Transition, pending.Proof, start)
	return updated, nil
}

// abandonIntent clears the in-flight marker after a failed ledger call.
func (s *Service) abandonIntent(ctx context.Context, bookingID id.BookingID, token string) {
	ctx = context.WithoutCancel(ctx)
	now := s.now(ctx)
	_, err := s.store.Update(ctx, bookingID, func(b *models.Booking) error {
		if !b.ClearIntent(token, now) {
			return errAlreadyApplied
		}
		return nil
	})
	if err != nil && !errors.Is(err, errAlreadyApplied) {
		s.logger.ErrorContext(ctx, "failed to clear pending intent",
			"booking_id", bookingID,
			"error", err,
		)
	}
}

// committed records metrics, logs and audit events for an applied
// transition.
func (s *Service) committed(ctx context.Context, from models.Status, b *models.Booking, t models.Transition, p *proof.Proof, start time.Time) {
	s.metrics.IncTransition(string(from), string(b.Status), string(t))
	s.metrics.ObserveTransition(string(t), time.Since(start))

	last := b.History[len(b.History)-1]
	event := audit.Event{
		Type:             eventFor(t),
		BookingID:        b.ID,
		TenantID:         b.TenantID,
		PropertyID:       b.PropertyID,
		Transition:       string(t),
		From:             string(from),
		To:               string(b.Status),
		Actor:            last.Actor,
		VerificationHash: b.VerificationHash.Hex(),
	}
	if p != nil {
		event.ProofKind = string(p.Kind)
		event.Degraded = p.Degraded
	}
	switch t {
	case models.TransitionActivateEscrow:
		event.LedgerReference = b.EscrowReference
		event.Amount = b.DepositAmount
	case models.TransitionComplete, models.TransitionResolve:
		if b.Settlement != nil {
			event.LedgerReference = b.Settlement.Reference
			event.Amount = b.Settlement.Split.TenantRefund
			event.Reason = b.Settlement.Outcome
		}
	case models.TransitionDispute:
		if b.Dispute != nil {
			event.Reason = b.Dispute.Reason
		}
	}

	s.logger.InfoContext(ctx, "booking transitioned",
		"booking_id", b.ID,
		"transition", t,
		"from", from,
		"to", b.Status,
		"degraded", event.Degraded,
	)
	s.emit(ctx, event)

	if p != nil && p.Degraded {
		s.metrics.IncDegraded(string(p.Kind))
		degraded := event
		degraded.Type = audit.EventDegradedAccepted
		s.emit(ctx, degraded)
	}
}

// proofRejected audits a transition refused because of its proof.
func (s *Service) proofRejected(ctx context.Context, bookingID id.BookingID, t models.Transition, p *proof.Proof, err error) {
	if !dErrors.HasCode(err, dErrors.CodeInvalidProof) && !dErrors.HasCode(err, dErrors.CodeExpired) {
		return
	}
	event := audit.Event{
		Type:       audit.EventProofRejected,
		BookingID:  bookingID,
		Transition: string(t),
		Reason:     err.Error(),
	}
	if p != nil {
		event.ProofKind = string(p.Kind)
		event.Degraded = p.Degraded
		event.Actor = actorFor(p).String()
	}
	s.logger.WarnContext(ctx, "proof rejected",
		"booking_id", bookingID,
		"transition", t,
		"error", err,
	)
	s.emit(ctx, event)
}

func eventFor(t models.Transition) audit.EventType {
	switch t {
	case models.TransitionCancel:
		return audit.EventBookingCancelled
	case models.TransitionDispute:
		return audit.EventDisputeRaised
	case models.TransitionActivateEscrow:
		return audit.EventDepositLocked
	case models.TransitionComplete, models.TransitionResolve:
		return audit.EventBookingSettled
	}
	return audit.EventBookingTransitioned
}

// actorFor attributes a proof-driven transition to the proof's issuer.
func actorFor(p *proof.Proof) models.Actor {
	if p == nil {
		return models.SystemActor
	}
	return models.Actor{ID: p.Issuer, Role: models.RoleSystem}
}

// awaiting reports whether b has a ledger intent in flight for t.
func awaiting(b *models.Booking, t models.Transition) bool {
	return b.Pending != nil && b.Pending.Transition == t
}

func checkVersion(b *models.Booking, expect uint64) error {
	if expect != 0 && b.Version != expect {
		return dErrors.Newf(dErrors.CodeStale, "booking %s changed while verification ran", b.ID)
	}
	return nil
}

func lastTransition(b *models.Booking) models.Transition {
	if len(b.History) == 0 {
		return ""
	}
	return b.History[len(b.History)-1].Transition
}

func translateLedgerErr(err error) error {
	switch {
	case ledger.Definite(err):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "ledger rejected intent")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger call timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger unavailable")
}
