/**
 * @description
 * This file defines the core domain models for the hawala-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and public
 *   projections ensures clear separation of concerns and type safety.
 * - Monetary amounts and rates are float64 rounded to 4 decimal places at the
 *   resolution boundary; the amounts recorded on a transfer are fixed at
 *   creation time and never recomputed.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transfer statuses. A transfer starts pending; completed and cancelled are
// terminal and no transition ever leaves them.
const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusCancelled = "cancelled"
)

// Transfer represents a hawala settlement record. This struct maps directly to
// the `transfers` table. The ledger is the only writer of Status, CompletedAt
// and HandlerID; currency, amount and rate fields are immutable once the
// record leaves pending.
type Transfer struct {
	ID              uuid.UUID  `json:"id"`
	ReferenceCode   string     `json:"reference_code"`
	Status          string     `json:"status"`
	FromCurrency    string     `json:"from_currency"`
	ToCurrency      string     `json:"to_currency"`
	FromAmount      float64    `json:"from_amount"`
	ToAmount        float64    `json:"to_amount"`
	Rate            float64    `json:"rate"`
	Fee             float64    `json:"fee"`
	SenderID        *uuid.UUID `json:"sender_id,omitempty"`
	ReceiverName    string     `json:"receiver_name"`
	ReceiverPhone   string     `json:"receiver_phone"`
	ReceiverCity    string     `json:"receiver_city"`
	ReceiverCountry string     `json:"receiver_country"`
	SarafID         uuid.UUID  `json:"saraf_id"`
	BranchID        *uuid.UUID `json:"branch_id,omitempty"`
	HandlerID       *uuid.UUID `json:"handler_id,omitempty"`
	InternalNotes   string     `json:"internal_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the transfer has reached a final status.
func (t *Transfer) IsTerminal() bool {
	return t.Status == TransferStatusCompleted || t.Status == TransferStatusCancelled
}

// CreateTransferRequest is the DTO for incoming transfer creation API requests.
// SenderID is optional: walk-in customers have no platform account. SarafID is
// only honored for admin actors; handlers always create at their own saraf.
type CreateTransferRequest struct {
	SarafID         *uuid.UUID `json:"saraf_id,omitempty"`
	FromCurrency    string     `json:"from_currency"`
	ToCurrency      string     `json:"to_currency"`
	FromAmount      float64    `json:"from_amount"`
	Fee             float64    `json:"fee"`
	SenderID        *uuid.UUID `json:"sender_id,omitempty"`
	ReceiverName    string     `json:"receiver_name"`
	ReceiverPhone   string     `json:"receiver_phone"`
	ReceiverCity    string     `json:"receiver_city"`
	ReceiverCountry string     `json:"receiver_country"`
	BranchID        *uuid.UUID `json:"branch_id,omitempty"`
}

// CompleteTransferRequest is the DTO for completing a pending transfer.
type CompleteTransferRequest struct {
	Notes string `json:"notes,omitempty"`
}

// CancelTransferRequest is the DTO for cancelling a pending transfer.
type CancelTransferRequest struct {
	Reason string `json:"reason"`
}

// TrackedTransfer is the sanitized public projection returned by the tracking
// endpoint. It deliberately excludes internal notes and the handler identity.
type TrackedTransfer struct {
	ID              uuid.UUID  `json:"id"`
	ReferenceCode   string     `json:"reference_code"`
	Status          string     `json:"status"`
	FromCurrency    string     `json:"from_currency"`
	ToCurrency      string     `json:"to_currency"`
	FromAmount      float64    `json:"from_amount"`
	ToAmount        float64    `json:"to_amount"`
	Rate            float64    `json:"rate"`
	Fee             float64    `json:"fee"`
	SenderID        *uuid.UUID `json:"sender_id,omitempty"`
	ReceiverName    string     `json:"receiver_name"`
	ReceiverCity    string     `json:"receiver_city"`
	ReceiverCountry string     `json:"receiver_country"`
	SarafName       string     `json:"saraf_name,omitempty"`
	SarafCity       string     `json:"saraf_city,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Sanitize builds the public tracking projection for a transfer.
func (t *Transfer) Sanitize(saraf *SarafInfo) TrackedTransfer {
	tracked := TrackedTransfer{
		ID:              t.ID,
		ReferenceCode:   t.ReferenceCode,
		Status:          t.Status,
		FromCurrency:    t.FromCurrency,
		ToCurrency:      t.ToCurrency,
		FromAmount:      t.FromAmount,
		ToAmount:        t.ToAmount,
		Rate:            t.Rate,
		Fee:             t.Fee,
		SenderID:        t.SenderID,
		ReceiverName:    t.ReceiverName,
		ReceiverCity:    t.ReceiverCity,
		ReceiverCountry: t.ReceiverCountry,
		CreatedAt:       t.CreatedAt,
		CompletedAt:     t.CompletedAt,
	}
	if saraf != nil {
		tracked.SarafName = saraf.BusinessName
		tracked.SarafCity = saraf.City
	}
	return tracked
}

// SarafInfo is the display view of an exchange house used on public
// projections. The saraf aggregate itself is owned by the directory service.
type SarafInfo struct {
	ID           uuid.UUID `json:"id"`
	BusinessName string    `json:"business_name"`
	City         string    `json:"city"`
	Country      string    `json:"country"`
}

// TransferListOptions is the statically-typed query specification for
// conditional transfer listings. Zero values mean "no filter".
type TransferListOptions struct {
	Status       string
	FromCurrency string
	ToCurrency   string
	Limit        int
	Offset       int
}

// InAppNotification is a persistent notification row written alongside the
// broker publish so dashboard users see events even if they were offline.
type InAppNotification struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	ResourceID uuid.UUID `json:"resource_id"`
	CreatedAt  time.Time `json:"created_at"`
}
