package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository создаёт PostgreSQL-реализацию SessionRepository.
func NewSessionRepository(store *Store) domain.SessionRepository {
	return &sessionRepository{db: store.DB()}
}

func (r *sessionRepository) Create(session domain.PaymentSession) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (
			gateway_order_id, order_id, invoice_id, amount_minor, currency,
			receipt, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		session.GatewayOrderID,
		nullString(session.OrderID),
		nullString(session.InvoiceID),
		session.AmountMinor,
		session.Currency,
		session.Receipt,
		string(session.Status),
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSessionConsumed
		}
		return fmt.Errorf("insert payment session: %w", err)
	}

	return nil
}

func (r *sessionRepository) Get(gatewayOrderID string) (domain.PaymentSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		session   domain.PaymentSession
		orderID   sql.NullString
		invoiceID sql.NullString
		status    string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT gateway_order_id, order_id, invoice_id, amount_minor, currency,
		       receipt, status, created_at, updated_at
		FROM payment_sessions
		WHERE gateway_order_id = $1
	`, gatewayOrderID).Scan(
		&session.GatewayOrderID,
		&orderID,
		&invoiceID,
		&session.AmountMinor,
		&session.Currency,
		&session.Receipt,
		&status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentSession{}, domain.ErrSessionNotFound
		}
		return domain.PaymentSession{}, fmt.Errorf("select payment session: %w", err)
	}

	session.OrderID = orderID.String
	session.InvoiceID = invoiceID.String
	session.Status = domain.SessionStatus(status)
	return session, nil
}

// MarkConsumed помечает сессию потреблённой; повторный вызов — no-op.
func (r *sessionRepository) MarkConsumed(gatewayOrderID string) error {
	return r.setStatus(gatewayOrderID, domain.SessionStatusConsumed, nil)
}

// MarkExpired закрывает сессию без оплаты; потреблённая сессия не
// переоткрывается.
func (r *sessionRepository) MarkExpired(gatewayOrderID string) error {
	consumed := domain.SessionStatusConsumed
	return r.setStatus(gatewayOrderID, domain.SessionStatusExpired, &consumed)
}

func (r *sessionRepository) setStatus(gatewayOrderID string, status domain.SessionStatus, forbidden *domain.SessionStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		UPDATE payment_sessions
		SET status = $1, updated_at = $2
		WHERE gateway_order_id = $3
	`
	args := []any{string(status), time.Now().UTC(), gatewayOrderID}
	if forbidden != nil {
		query += " AND status <> $4"
		args = append(args, string(*forbidden))
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update payment session status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(gatewayOrderID); getErr != nil {
			return getErr
		}
		if forbidden != nil {
			return domain.ErrSessionConsumed
		}
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.SessionRepository = (*sessionRepository)(nil)
