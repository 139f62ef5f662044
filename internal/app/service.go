/**
 * @description
 * This file contains the core business logic for the hawala-service: the
 * transfer state machine and the conversion entry point. The `Service` struct
 * coordinates between the ledger repository, the rate resolver, and the event
 * producer.
 *
 * Key features:
 * - Enforces the legal transfer transitions (pending → completed/cancelled)
 *   with authorization checked once at the entry of each operation.
 * - Never mutates storage directly: every status change goes through the
 *   ledger's conditional TransitionTransfer, so concurrent requests race at
 *   the storage layer and exactly one wins.
 * - Commits the status change before any side effect; audit, notification and
 *   counter failures are logged and swallowed, never compensated.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store, internal/ratecache: Models, ledger, cache.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sarafnet/hawala-service/internal/domain"
	"github.com/sarafnet/hawala-service/internal/ratecache"
	"github.com/sarafnet/hawala-service/internal/store"
	"github.com/sarafnet/hawala-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrInvalidFee       = errors.New("fee cannot be negative")
	ErrSameCurrency     = errors.New("from and to currencies must differ")
	ErrInvalidCurrency  = errors.New("currency code is required")
	ErrMissingReceiver  = errors.New("receiver name and country are required")
	ErrMissingSaraf     = errors.New("owning saraf is required")
	ErrMissingReason    = errors.New("cancellation reason is required")
	ErrMissingReference = errors.New("reference code is required")
	ErrPermissionDenied = errors.New("actor is not permitted to perform this action")
)

// RateResolver is the pricing dependency of the state machine. The concrete
// implementation lives in internal/rates; tests substitute a stub.
type RateResolver interface {
	Resolve(ctx context.Context, from, to string, amount float64) domain.ConversionResult
}

// Service provides the core business logic for transfers and conversions.
type Service struct {
	repo          store.Repository
	resolver      RateResolver
	eventProducer rabbitmq.Publisher
	rateCache     *ratecache.Cache
}

// NewService creates a new settlement service instance.
func NewService(repo store.Repository, resolver RateResolver, producer rabbitmq.Publisher, rateCache *ratecache.Cache) *Service {
	return &Service{
		repo:          repo,
		resolver:      resolver,
		eventProducer: producer,
		rateCache:     rateCache,
	}
}

// finitePositive reports whether v is a usable monetary amount. NaN and the
// infinities slip past plain comparisons (ParseFloat accepts "NaN" and "Inf")
// and would poison every downstream computation, so they are rejected here.
func finitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Convert prices an ad-hoc conversion. Same-currency and non-positive amounts
// are rejected before any resolution work; past validation the resolver's
// degrade path guarantees a best-effort result.
func (s *Service) Convert(ctx context.Context, from, to string, amount float64) (*domain.ConversionResult, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return nil, ErrInvalidCurrency
	}
	if from == to {
		return nil, ErrSameCurrency
	}
	if !finitePositive(amount) {
		return nil, ErrInvalidAmount
	}

	result := s.resolver.Resolve(ctx, from, to, amount)
	return &result, nil
}

// CreateTransfer prices and persists a new pending transfer. The resolved
// rate and computed to_amount are fixed at this moment and never recomputed:
// the record is an immutable account of the deal struck.
func (s *Service) CreateTransfer(ctx context.Context, actor domain.Actor, req domain.CreateTransferRequest) (*domain.Transfer, error) {
	sarafID, err := s.resolveOwningSaraf(actor, req.SarafID)
	if err != nil {
		return nil, err
	}

	from := strings.ToUpper(strings.TrimSpace(req.FromCurrency))
	to := strings.ToUpper(strings.TrimSpace(req.ToCurrency))
	switch {
	case from == "" || to == "":
		return nil, ErrInvalidCurrency
	case from == to:
		return nil, ErrSameCurrency
	case !finitePositive(req.FromAmount):
		return nil, ErrInvalidAmount
	case !finiteNonNegative(req.Fee):
		return nil, ErrInvalidFee
	case strings.TrimSpace(req.ReceiverName) == "" || strings.TrimSpace(req.ReceiverCountry) == "":
		return nil, ErrMissingReceiver
	}

	priced := s.resolver.Resolve(ctx, from, to, req.FromAmount)

	transfer := &domain.Transfer{
		FromCurrency:    from,
		ToCurrency:      to,
		FromAmount:      req.FromAmount,
		ToAmount:        priced.Result,
		Rate:            priced.Rate,
		Fee:             req.Fee,
		SenderID:        req.SenderID,
		ReceiverName:    strings.TrimSpace(req.ReceiverName),
		ReceiverPhone:   strings.TrimSpace(req.ReceiverPhone),
		ReceiverCity:    strings.TrimSpace(req.ReceiverCity),
		ReceiverCountry: strings.TrimSpace(req.ReceiverCountry),
		SarafID:         sarafID,
		BranchID:        req.BranchID,
		InternalNotes:   fmt.Sprintf("created by %s (rate tier %s)", actor.ID, priced.Tier),
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		log.Printf("level=error component=app op=create_transfer outcome=failed saraf_id=%s err=%v", sarafID, err)
		return nil, fmt.Errorf("failed to create transfer record: %w", err)
	}

	log.Printf("level=info component=app op=create_transfer outcome=created transfer_id=%s reference_code=%s pair=%s-%s rate=%.4f tier=%s",
		transfer.ID, transfer.ReferenceCode, from, to, priced.Rate, priced.Tier)

	s.appendAudit(ctx, actor.ID, "transfer.create", transfer.ID, fmt.Sprintf("%s %.4f %s -> %.4f %s", transfer.ReferenceCode, transfer.FromAmount, from, transfer.ToAmount, to))
	return transfer, nil
}

// CompleteTransfer moves a pending transfer to completed. The actor must be
// an admin or the handler of the owning saraf; the permission check happens
// before the conditional write is attempted. A concurrent request that beat
// this one to a terminal status surfaces as store.ErrTransferStateConflict.
func (s *Service) CompleteTransfer(ctx context.Context, actor domain.Actor, transferID uuid.UUID, notes string) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin() && !actor.HandlesSaraf(transfer.SarafID) {
		return nil, ErrPermissionDenied
	}

	now := time.Now().UTC()
	handlerID := actor.ID
	note := fmt.Sprintf("completed by %s", actor.ID)
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		note += ": " + trimmed
	}

	updated, err := s.repo.TransitionTransfer(ctx, transferID, domain.TransferStatusPending, domain.TransferStatusCompleted, store.TransferMutation{
		CompletedAt: &now,
		HandlerID:   &handlerID,
		AppendNote:  note,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app op=complete_transfer outcome=completed transfer_id=%s handler_id=%s", transferID, actor.ID)

	// Side effects run strictly after the committed transition and are
	// best-effort: the transfer stays completed even if any of them fail.
	if counterErr := s.repo.IncrementSarafTransactions(ctx, updated.SarafID); counterErr != nil {
		log.Printf("level=warn component=app op=complete_transfer side_effect=saraf_counter outcome=failed saraf_id=%s err=%v", updated.SarafID, counterErr)
	}
	s.appendAudit(ctx, actor.ID, "transfer.complete", updated.ID, updated.ReferenceCode)
	s.notifySender(ctx, updated, "Transfer completed",
		fmt.Sprintf("Your transfer %s has been paid out to %s.", updated.ReferenceCode, updated.ReceiverName))
	s.publishTransferEvent(ctx, updated)

	return updated, nil
}

// CancelTransfer moves a pending transfer to cancelled. Admins, the
// transfer's own sender, and the owning saraf's handler may cancel. Transfers
// created without a sender can only be cancelled by an admin or the handler.
func (s *Service) CancelTransfer(ctx context.Context, actor domain.Actor, transferID uuid.UUID, reason string) (*domain.Transfer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}

	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	isSender := transfer.SenderID != nil && *transfer.SenderID == actor.ID
	if !actor.IsAdmin() && !isSender && !actor.HandlesSaraf(transfer.SarafID) {
		return nil, ErrPermissionDenied
	}

	updated, err := s.repo.TransitionTransfer(ctx, transferID, domain.TransferStatusPending, domain.TransferStatusCancelled, store.TransferMutation{
		AppendNote: fmt.Sprintf("cancelled by %s: %s", actor.ID, reason),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app op=cancel_transfer outcome=cancelled transfer_id=%s actor_id=%s", transferID, actor.ID)

	s.appendAudit(ctx, actor.ID, "transfer.cancel", updated.ID, reason)
	s.notifySender(ctx, updated, "Transfer cancelled",
		fmt.Sprintf("Your transfer %s was cancelled: %s", updated.ReferenceCode, reason))
	s.publishTransferEvent(ctx, updated)

	return updated, nil
}

// TrackTransfer is the public, unauthenticated lookup by reference code. The
// projection excludes internal notes and the handler identity. Saraf display
// info is best-effort: a directory failure degrades the projection rather
// than failing the lookup.
func (s *Service) TrackTransfer(ctx context.Context, referenceCode string) (*domain.TrackedTransfer, error) {
	if strings.TrimSpace(referenceCode) == "" {
		return nil, ErrMissingReference
	}

	transfer, err := s.repo.FindTransferByReferenceCode(ctx, referenceCode)
	if err != nil {
		return nil, err
	}

	saraf, err := s.repo.FindSarafInfoByID(ctx, transfer.SarafID)
	if err != nil {
		log.Printf("level=warn component=app op=track_transfer msg=\"saraf lookup failed; returning projection without saraf info\" saraf_id=%s err=%v", transfer.SarafID, err)
		saraf = nil
	}

	tracked := transfer.Sanitize(saraf)
	return &tracked, nil
}

// GetTransfer returns the full operator view of a transfer. Admins, the
// owning saraf's handler, and the transfer's sender may read it.
func (s *Service) GetTransfer(ctx context.Context, actor domain.Actor, transferID uuid.UUID) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	isSender := transfer.SenderID != nil && *transfer.SenderID == actor.ID
	if !actor.IsAdmin() && !isSender && !actor.HandlesSaraf(transfer.SarafID) {
		return nil, ErrPermissionDenied
	}
	return transfer, nil
}

// ListTransfers returns the transfers owned by a saraf. Handlers may only
// list their own saraf; admins may list any.
func (s *Service) ListTransfers(ctx context.Context, actor domain.Actor, sarafID uuid.UUID, opts domain.TransferListOptions) ([]domain.Transfer, error) {
	if !actor.IsAdmin() && !actor.HandlesSaraf(sarafID) {
		return nil, ErrPermissionDenied
	}
	return s.repo.ListTransfersBySaraf(ctx, sarafID, opts)
}

// InvalidateRateCache clears cached quotes. An empty pattern clears the whole
// rate keyspace; otherwise the pattern is compiled as a regular expression.
// This is the explicit administrative lifecycle operation for the cache.
func (s *Service) InvalidateRateCache(pattern string) (int, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = "^rate:"
	}
	return s.rateCache.InvalidatePattern(pattern)
}

// resolveOwningSaraf decides which saraf a new transfer belongs to. Saraf
// handlers always create at their own house; admins must name one.
func (s *Service) resolveOwningSaraf(actor domain.Actor, requested *uuid.UUID) (uuid.UUID, error) {
	if actor.Role == domain.RoleSaraf {
		if actor.OwnedSarafID == nil {
			return uuid.Nil, ErrMissingSaraf
		}
		return *actor.OwnedSarafID, nil
	}
	if actor.IsAdmin() {
		if requested == nil || *requested == uuid.Nil {
			return uuid.Nil, ErrMissingSaraf
		}
		return *requested, nil
	}
	return uuid.Nil, ErrPermissionDenied
}

func (s *Service) appendAudit(ctx context.Context, actorID uuid.UUID, action string, resourceID uuid.UUID, details string) {
	if err := s.repo.AppendAuditEntry(ctx, store.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		ResourceID: resourceID,
		Details:    details,
	}); err != nil {
		log.Printf("level=warn component=app side_effect=audit outcome=failed action=%s resource_id=%s err=%v", action, resourceID, err)
	}
}

// notifySender writes the persistent in-app notification and publishes the
// broker event for the transfer's sender, when one exists. Both paths are
// best-effort.
func (s *Service) notifySender(ctx context.Context, transfer *domain.Transfer, title, message string) {
	if transfer.SenderID == nil {
		return
	}

	if err := s.repo.CreateInAppNotification(ctx, domain.InAppNotification{
		UserID:     *transfer.SenderID,
		Title:      title,
		Message:    message,
		ResourceID: transfer.ID,
	}); err != nil {
		log.Printf("level=warn component=app side_effect=in_app_notification outcome=failed user_id=%s transfer_id=%s err=%v", *transfer.SenderID, transfer.ID, err)
	}

	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.PublishNotification(ctx, rabbitmq.NotificationEvent{
		UserID:    *transfer.SenderID,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		log.Printf("level=warn component=app side_effect=notification_publish outcome=failed user_id=%s transfer_id=%s err=%v", *transfer.SenderID, transfer.ID, err)
	}
}

func (s *Service) publishTransferEvent(ctx context.Context, transfer *domain.Transfer) {
	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.PublishTransferEvent(ctx, rabbitmq.TransferEvent{
		TransferID:    transfer.ID,
		ReferenceCode: transfer.ReferenceCode,
		SarafID:       transfer.SarafID,
		Status:        transfer.Status,
		Timestamp:     time.Now().UTC(),
	}); err != nil {
		log.Printf("level=warn component=app side_effect=transfer_event outcome=failed transfer_id=%s err=%v", transfer.ID, err)
	}
}
