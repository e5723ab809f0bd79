package postgres

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commerce-core/stock-reservation-saga/internal/inventory/application"
	"github.com/commerce-core/stock-reservation-saga/internal/inventory/domain"
	"github.com/commerce-core/stock-reservation-saga/pkg/outbox"
)

// Repository implements application.Store on pgx. Inventory writes are
// version-checked; a lost race surfaces as application.ErrVersionConflict.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const inventoryColumns = `id, product_id, available_quantity, reserved_quantity, total_quantity, version, created_at, updated_at`

func (r *Repository) GetInventory(ctx context.Context, id int64) (domain.Inventory, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM inventories WHERE id=$1`, id)
	return scanInventory(row, strconv.FormatInt(id, 10))
}

func (r *Repository) GetInventoryByProduct(ctx context.Context, productID string) (domain.Inventory, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM inventories WHERE product_id=$1`, productID)
	return scanInventory(row, productID)
}

func scanInventory(row pgx.Row, ref string) (domain.Inventory, error) {
	var inv domain.Inventory
	err := row.Scan(&inv.ID, &inv.ProductID, &inv.AvailableQuantity, &inv.ReservedQuantity,
		&inv.TotalQuantity, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Inventory{}, &domain.NotFoundError{Entity: "inventory", Ref: ref}
	}
	if err != nil {
		return domain.Inventory{}, err
	}
	return inv, nil
}

const reservationColumns = `id, inventory_id, order_id, product_id, quantity, status, expires_at, created_at`

func (r *Repository) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	var res domain.Reservation
	err := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id).
		Scan(&res.ID, &res.InventoryID, &res.OrderID, &res.ProductID, &res.Quantity, &res.Status, &res.ExpiresAt, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, &domain.NotFoundError{Entity: "reservation", Ref: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func (r *Repository) FindReservation(ctx context.Context, orderID string, inventoryID int64) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE order_id=$1 AND inventory_id=$2`, orderID, inventoryID).
		Scan(&res.ID, &res.InventoryID, &res.OrderID, &res.ProductID, &res.Quantity, &res.Status, &res.ExpiresAt, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) NextReservationID(ctx context.Context) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT nextval('reservations_id_seq')`).Scan(&id)
	return id, err
}

func (r *Repository) CreateReservationTx(ctx context.Context, inv domain.Inventory, res domain.Reservation, hist domain.History, evt outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := updateInventory(ctx, tx, inv); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO reservations (id, inventory_id, order_id, product_id, quantity, status, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		res.ID, res.InventoryID, res.OrderID, res.ProductID, res.Quantity, res.Status, res.ExpiresAt, res.CreatedAt)
	if err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, hist); err != nil {
		return err
	}
	if err := outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) FinalizeReservationTx(ctx context.Context, inv domain.Inventory, res domain.Reservation, hist domain.History, evt outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := updateInventory(ctx, tx, inv); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `UPDATE reservations SET status=$2 WHERE id=$1 AND status=$3`,
		res.ID, res.Status, domain.ReservationActive)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// Another worker resolved the reservation between read and write.
		return application.ErrVersionConflict
	}
	if err := insertHistory(ctx, tx, hist); err != nil {
		return err
	}
	if err := outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) AdjustInventoryTx(ctx context.Context, inv domain.Inventory, hist domain.History) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := updateInventory(ctx, tx, inv); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, hist); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) EnqueueEvent(ctx context.Context, evt outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// updateInventory writes the mutated aggregate against the version it was
// loaded at. The domain bumps Version on every mutation, so the expected
// stored version is Version-1.
func updateInventory(ctx context.Context, tx pgx.Tx, inv domain.Inventory) error {
	ct, err := tx.Exec(ctx, `
		UPDATE inventories
		SET available_quantity=$2, reserved_quantity=$3, total_quantity=$4, version=$5, updated_at=$6
		WHERE id=$1 AND version=$7`,
		inv.ID, inv.AvailableQuantity, inv.ReservedQuantity, inv.TotalQuantity, inv.Version, inv.UpdatedAt, inv.Version-1)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrVersionConflict
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, h domain.History) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO inventory_history (inventory_id, change_type, quantity, before_quantity, after_quantity, reason, reference_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		h.InventoryID, h.ChangeType, h.Quantity, h.BeforeQuantity, h.AfterQuantity, h.Reason, h.ReferenceID, h.CreatedAt)
	return err
}
