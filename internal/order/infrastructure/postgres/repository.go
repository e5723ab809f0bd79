package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commerce-core/stock-reservation-saga/internal/order/application"
	"github.com/commerce-core/stock-reservation-saga/internal/order/domain"
	"github.com/commerce-core/stock-reservation-saga/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) CreateWithOutbox(ctx context.Context, o domain.Order, evts []outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, customer, status, cancel_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.OrderNumber, o.Customer, o.Status, o.CancelReason, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, product_id, quantity, price_cents)
			VALUES ($1,$2,$3,$4)`,
			o.ID, item.ProductID, item.Quantity, item.PriceCents)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	for _, evt := range evts {
		if err := outbox.Insert(ctx, tx, evt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, `WHERE id=$1`, id)
}

func (r *Repository) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	return r.get(ctx, `WHERE order_number=$1`, number)
}

func (r *Repository) get(ctx context.Context, where, arg string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_number, customer, status, cancel_reason, created_at, updated_at
		FROM orders `+where, arg).
		Scan(&o.ID, &o.OrderNumber, &o.Customer, &o.Status, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, &domain.NotFoundError{Ref: arg}
	}
	if err != nil {
		return domain.Order{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id, quantity, price_cents FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.PriceCents); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (r *Repository) UpdateStatusWithOutbox(ctx context.Context, o domain.Order, evts []outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `UPDATE orders SET status=$2, cancel_reason=$3, updated_at=$4 WHERE id=$1`,
		o.ID, o.Status, o.CancelReason, o.UpdatedAt)
	if err != nil {
		return err
	}
	for _, evt := range evts {
		if err := outbox.Insert(ctx, tx, evt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) AddReservation(ctx context.Context, orderNumber string, reservationID int64, productID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO order_reservations (order_number, reservation_id, product_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (reservation_id) DO NOTHING`,
		orderNumber, reservationID, productID)
	return err
}

func (r *Repository) Reservations(ctx context.Context, orderNumber string) ([]application.OrderReservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT reservation_id, product_id FROM order_reservations WHERE order_number=$1`, orderNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []application.OrderReservation
	for rows.Next() {
		var res application.OrderReservation
		if err := rows.Scan(&res.ReservationID, &res.ProductID); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
