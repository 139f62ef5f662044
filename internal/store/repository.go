/**
 * @description
 * This file defines the `Repository` interface, the contract for the transfer
 * ledger and its supporting tables (audit log, saraf counters, in-app
 * notifications). The interface decouples the state machine from PostgreSQL
 * and is what the service tests stub out.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sarafnet/hawala-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
// It is the sole writer of transfer status, completed_at and handler_id.
type Repository interface {
	// Transfer ledger
	CreateTransfer(ctx context.Context, transfer *domain.Transfer) error
	FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error)
	FindTransferByReferenceCode(ctx context.Context, referenceCode string) (*domain.Transfer, error)
	ListTransfersBySaraf(ctx context.Context, sarafID uuid.UUID, opts domain.TransferListOptions) ([]domain.Transfer, error)
	// TransitionTransfer is the only write path for status changes. The update
	// succeeds only when the stored status still equals expectedStatus; a lost
	// race surfaces as ErrTransferStateConflict, never as a generic failure.
	TransitionTransfer(ctx context.Context, transferID uuid.UUID, expectedStatus, newStatus string, mutation TransferMutation) (*domain.Transfer, error)

	// Saraf directory and aggregate counters
	FindSarafInfoByID(ctx context.Context, sarafID uuid.UUID) (*domain.SarafInfo, error)
	IncrementSarafTransactions(ctx context.Context, sarafID uuid.UUID) error

	// Audit trail
	AppendAuditEntry(ctx context.Context, entry AuditEntry) error

	// In-app notifications
	CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error
}

// TransferMutation carries the field changes applied atomically together with
// a status transition. Nil/empty fields are left untouched; AppendNote is
// appended to the record's internal notes, which are never rewritten.
type TransferMutation struct {
	CompletedAt *time.Time
	HandlerID   *uuid.UUID
	AppendNote  string
}

// AuditEntry is one append-only audit trail record.
type AuditEntry struct {
	ActorID    uuid.UUID
	Action     string
	ResourceID uuid.UUID
	Details    string
}
