package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

type invoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository создаёт PostgreSQL-реализацию InvoiceRepository.
func NewInvoiceRepository(store *Store) domain.InvoiceRepository {
	return &invoiceRepository{db: store.DB()}
}

func (r *invoiceRepository) Get(id string) (domain.PrescriptionInvoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		invoice domain.PrescriptionInvoice
		status  string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, prescription_id, user_id, total_minor, currency, status,
		       prescription_fulfilled, version, created_at, updated_at
		FROM prescription_invoices
		WHERE id = $1
	`, id).Scan(
		&invoice.ID,
		&invoice.PrescriptionID,
		&invoice.UserID,
		&invoice.TotalMinor,
		&invoice.Currency,
		&status,
		&invoice.PrescriptionFulfilled,
		&invoice.Version,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PrescriptionInvoice{}, domain.ErrInvoiceNotFound
		}
		return domain.PrescriptionInvoice{}, fmt.Errorf("select invoice: %w", err)
	}

	invoice.Status = domain.InvoiceStatus(status)
	return invoice, nil
}

// Save применяет обновления с учётом optimistic locking.
func (r *invoiceRepository) Save(invoice domain.PrescriptionInvoice) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE prescription_invoices
		SET status = $1,
		    prescription_fulfilled = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4
		  AND version = $5
	`,
		string(invoice.Status),
		invoice.PrescriptionFulfilled,
		invoice.UpdatedAt,
		invoice.ID,
		invoice.Version,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("invoice rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(invoice.ID); getErr != nil {
			return getErr
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

// MarkPrescriptionFulfilled помечает связанный рецепт исполненным; апдейт
// идёт мимо optimistic locking, чтобы не конфликтовать с пометкой paid.
func (r *invoiceRepository) MarkPrescriptionFulfilled(invoiceID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE prescription_invoices
		SET prescription_fulfilled = TRUE,
		    updated_at = $1
		WHERE id = $2
	`, time.Now().UTC(), invoiceID)
	if err != nil {
		return fmt.Errorf("mark prescription fulfilled: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("invoice rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrInvoiceNotFound
	}

	return nil
}

var _ domain.InvoiceRepository = (*invoiceRepository)(nil)
