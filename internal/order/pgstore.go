package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/liftmode/netcents-gateway/internal/payment"
)

// PGStore implements Store against the hosting system's orders schema.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

const orderColumns = `id, increment_id, state, status, payment_status, payment_method,
	customer_email, currency_code, grand_total, payment_record, created_at, updated_at`

func (s *PGStore) GetByID(ctx context.Context, id uuid.UUID) (Order, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, pgUUID(id))
	return scanOrder(row)
}

func (s *PGStore) GetByIncrementID(ctx context.Context, incrementID string) (Order, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE increment_id = $1`, incrementID)
	return scanOrder(row)
}

func (s *PGStore) ListPendingSync(ctx context.Context, method string, limit int32) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE payment_method = $1
		   AND state IN ($2, $3)
		   AND payment_status = $4
		 ORDER BY updated_at ASC
		 LIMIT $5`,
		method, string(StatePendingPayment), string(StateProcessing), string(PaymentPending), limit)
	if err != nil {
		return nil, fmt.Errorf("order: list pending sync: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: list pending sync: %w", err)
	}
	return out, nil
}

func (s *PGStore) SaveTransition(ctx context.Context, ord *Order, note string) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("order: begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	raw, err := payment.EncodeRecord(ord.Payment)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE orders
		 SET state = $2, status = $3, payment_status = $4, payment_record = $5, updated_at = now()
		 WHERE id = $1`,
		pgUUID(ord.ID), string(ord.State), ord.Status, string(ord.PaymentStatus), raw)
	if err != nil {
		return fmt.Errorf("order: update state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if note != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_status_history (id, order_id, state, status, comment, created_at)
			 VALUES ($1, $2, $3, $4, $5, now())`,
			pgUUID(uuid.New()), pgUUID(ord.ID), string(ord.State), ord.Status, note); err != nil {
			return fmt.Errorf("order: append history: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("order: commit transition: %w", err)
	}
	return nil
}

func (s *PGStore) SavePaymentRecord(ctx context.Context, id uuid.UUID, rec payment.Record) error {
	raw, err := payment.EncodeRecord(rec)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx,
		`UPDATE orders SET payment_record = $2, updated_at = now() WHERE id = $1`,
		pgUUID(id), raw)
	if err != nil {
		return fmt.Errorf("order: save payment record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOrder(row scannable) (Order, error) {
	var (
		ord    Order
		id     pgtype.UUID
		total  pgtype.Numeric
		record []byte
	)
	err := row.Scan(&id, &ord.IncrementID, &ord.State, &ord.Status, &ord.PaymentStatus,
		&ord.PaymentMethod, &ord.CustomerEmail, &ord.CurrencyCode, &total, &record,
		&ord.CreatedAt, &ord.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: scan: %w", err)
	}
	ord.ID = uuid.UUID(id.Bytes)
	if total.Valid {
		ord.GrandTotal = decimal.NewFromBigInt(total.Int, total.Exp)
	}
	rec, err := payment.DecodeRecord(record)
	if err != nil {
		return Order{}, err
	}
	ord.Payment = rec
	return ord, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
