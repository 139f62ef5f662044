/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL for the transfer ledger, the saraf
 * directory/counter tables, the audit log, and in-app notifications.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sarafnet/hawala-service/internal/domain"
)

var (
	ErrTransferNotFound       = errors.New("transfer not found")
	ErrTransferStateConflict  = errors.New("transfer is not in the expected status")
	ErrSarafNotFound          = errors.New("saraf not found")
	ErrReferenceCodeExhausted = errors.New("could not generate a unique reference code")
)

// referenceCodeAttempts bounds regeneration retries on a unique-index
// collision before the create is reported as a persistence failure.
const referenceCodeAttempts = 5

const transferColumns = `
	id, reference_code, status, from_currency, to_currency, from_amount, to_amount,
	rate, fee, sender_id, receiver_name, receiver_phone, receiver_city,
	receiver_country, saraf_id, branch_id, handler_id,
	COALESCE(internal_notes, '') AS internal_notes, created_at, completed_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateTransfer persists a new pending transfer. It assigns the id and a
// reference code; a unique-index collision on the code triggers regeneration
// rather than failing the request.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	transfer.ID = uuid.New()
	transfer.Status = domain.TransferStatusPending
	transfer.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO transfers (
			id, reference_code, status, from_currency, to_currency, from_amount,
			to_amount, rate, fee, sender_id, receiver_name, receiver_phone,
			receiver_city, receiver_country, saraf_id, branch_id, internal_notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	for attempt := 0; attempt < referenceCodeAttempts; attempt++ {
		code, err := NewReferenceCode()
		if err != nil {
			return err
		}
		transfer.ReferenceCode = code

		_, err = r.db.Exec(ctx, query,
			transfer.ID, transfer.ReferenceCode, transfer.Status,
			transfer.FromCurrency, transfer.ToCurrency, transfer.FromAmount,
			transfer.ToAmount, transfer.Rate, transfer.Fee, transfer.SenderID,
			transfer.ReceiverName, transfer.ReceiverPhone, transfer.ReceiverCity,
			transfer.ReceiverCountry, transfer.SarafID, transfer.BranchID,
			transfer.InternalNotes, transfer.CreatedAt,
		)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "transfers_reference_code_key" {
			continue
		}
		return err
	}

	return ErrReferenceCodeExhausted
}

// FindTransferByID retrieves a transfer by its opaque id.
func (r *PostgresRepository) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT` + transferColumns + ` FROM transfers WHERE id = $1`
	return r.scanTransfer(r.db.QueryRow(ctx, query, transferID))
}

// FindTransferByReferenceCode retrieves a transfer by its public tracking code.
func (r *PostgresRepository) FindTransferByReferenceCode(ctx context.Context, referenceCode string) (*domain.Transfer, error) {
	query := `SELECT` + transferColumns + ` FROM transfers WHERE reference_code = upper(btrim($1))`
	return r.scanTransfer(r.db.QueryRow(ctx, query, referenceCode))
}

// ListTransfersBySaraf retrieves the transfers owned by a saraf, applying the
// typed filter options.
func (r *PostgresRepository) ListTransfersBySaraf(ctx context.Context, sarafID uuid.UUID, opts domain.TransferListOptions) ([]domain.Transfer, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT` + transferColumns + `
		FROM transfers
		WHERE saraf_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR from_currency = $3)
		  AND ($4 = '' OR to_currency = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`
	rows, err := r.db.Query(ctx, query, sarafID, opts.Status, opts.FromCurrency, opts.ToCurrency, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		transfer, err := r.scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *transfer)
	}
	return transfers, rows.Err()
}

// TransitionTransfer performs the atomic conditional status update. The row
// is touched only when its stored status still equals expectedStatus; the
// mutation's fields land in the same statement. Zero rows affected is
// disambiguated into not-found versus state-conflict with a follow-up read.
func (r *PostgresRepository) TransitionTransfer(ctx context.Context, transferID uuid.UUID, expectedStatus, newStatus string, mutation TransferMutation) (*domain.Transfer, error) {
	query := `
		UPDATE transfers
		SET status = $3,
		    completed_at = COALESCE($4, completed_at),
		    handler_id = COALESCE($5, handler_id),
		    internal_notes = CASE
		        WHEN $6 = '' THEN internal_notes
		        ELSE concat_ws(E'\n', NULLIF(COALESCE(internal_notes, ''), ''), $6)
		    END
		WHERE id = $1 AND status = $2
		RETURNING` + transferColumns

	transfer, err := r.scanTransfer(r.db.QueryRow(ctx, query,
		transferID, expectedStatus, newStatus,
		mutation.CompletedAt, mutation.HandlerID, mutation.AppendNote,
	))
	if err == nil {
		return transfer, nil
	}
	if !errors.Is(err, ErrTransferNotFound) {
		return nil, err
	}

	// No row matched: either the id is unknown or the status already moved.
	if _, findErr := r.FindTransferByID(ctx, transferID); findErr != nil {
		return nil, findErr
	}
	return nil, ErrTransferStateConflict
}

// FindSarafInfoByID retrieves the display view of an exchange house.
func (r *PostgresRepository) FindSarafInfoByID(ctx context.Context, sarafID uuid.UUID) (*domain.SarafInfo, error) {
	var saraf domain.SarafInfo
	query := `SELECT id, business_name, city, country FROM sarafs WHERE id = $1`
	err := r.db.QueryRow(ctx, query, sarafID).Scan(&saraf.ID, &saraf.BusinessName, &saraf.City, &saraf.Country)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSarafNotFound
		}
		return nil, err
	}
	return &saraf, nil
}

// IncrementSarafTransactions bumps the owning saraf's settled-transaction
// counter by one.
func (r *PostgresRepository) IncrementSarafTransactions(ctx context.Context, sarafID uuid.UUID) error {
	query := `UPDATE sarafs SET transactions_count = transactions_count + 1, updated_at = NOW() WHERE id = $1`
	result, err := r.db.Exec(ctx, query, sarafID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSarafNotFound
	}
	return nil
}

// AppendAuditEntry writes one append-only audit trail record.
func (r *PostgresRepository) AppendAuditEntry(ctx context.Context, entry AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, actor_id, action, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query, uuid.New(), entry.ActorID, entry.Action, entry.ResourceID, entry.Details)
	return err
}

// CreateInAppNotification inserts a persistent notification row.
func (r *PostgresRepository) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	query := `
		INSERT INTO in_app_notifications (id, user_id, title, message, resource_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query, item.ID, item.UserID, item.Title, item.Message, item.ResourceID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanTransfer(row rowScanner) (*domain.Transfer, error) {
	var transfer domain.Transfer
	err := row.Scan(
		&transfer.ID, &transfer.ReferenceCode, &transfer.Status,
		&transfer.FromCurrency, &transfer.ToCurrency, &transfer.FromAmount,
		&transfer.ToAmount, &transfer.Rate, &transfer.Fee, &transfer.SenderID,
		&transfer.ReceiverName, &transfer.ReceiverPhone, &transfer.ReceiverCity,
		&transfer.ReceiverCountry, &transfer.SarafID, &transfer.BranchID,
		&transfer.HandlerID, &transfer.InternalNotes, &transfer.CreatedAt,
		&transfer.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to scan transfer row: %w", err)
	}
	return &transfer, nil
}
