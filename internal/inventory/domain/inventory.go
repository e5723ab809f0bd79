package domain

import "time"

// Inventory tracks per-product stock counters. The invariant
// AvailableQuantity + ReservedQuantity == TotalQuantity holds after every
// operation; Version backs optimistic locking at the persistence layer.
type Inventory struct {
	ID                int64
	ProductID         string
	AvailableQuantity int
	ReservedQuantity  int
	TotalQuantity     int
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (i *Inventory) IncreaseStock(qty int) error {
	if qty <= 0 {
		return &InvalidQuantityError{Quantity: qty}
	}
	i.AvailableQuantity += qty
	i.TotalQuantity += qty
	i.touch()
	return nil
}

func (i *Inventory) DecreaseStock(qty int) error {
	if qty <= 0 {
		return &InvalidQuantityError{Quantity: qty}
	}
	if qty > i.AvailableQuantity {
		return &InsufficientStockError{InventoryID: i.ID, Available: i.AvailableQuantity, Requested: qty}
	}
	i.AvailableQuantity -= qty
	i.TotalQuantity -= qty
	i.touch()
	return nil
}

// ReserveStock moves qty from the available pool to the reserved pool.
func (i *Inventory) ReserveStock(qty int) error {
	if qty <= 0 {
		return &InvalidQuantityError{Quantity: qty}
	}
	if qty > i.AvailableQuantity {
		return &InsufficientStockError{InventoryID: i.ID, Available: i.AvailableQuantity, Requested: qty}
	}
	i.AvailableQuantity -= qty
	i.ReservedQuantity += qty
	i.touch()
	return nil
}

// ReleaseReservedStock returns qty from the reserved pool to the available pool.
func (i *Inventory) ReleaseReservedStock(qty int) error {
	if qty <= 0 {
		return &InvalidQuantityError{Quantity: qty}
	}
	if qty > i.ReservedQuantity {
		return &InsufficientReservedStockError{InventoryID: i.ID, Reserved: i.ReservedQuantity, Requested: qty}
	}
	i.ReservedQuantity -= qty
	i.AvailableQuantity += qty
	i.touch()
	return nil
}

// ConfirmReservedStock removes qty from the reserved pool for good: the
// stock has left the warehouse, so the total shrinks with it.
func (i *Inventory) ConfirmReservedStock(qty int) error {
	if qty <= 0 {
		return &InvalidQuantityError{Quantity: qty}
	}
	if qty > i.ReservedQuantity {
		return &InsufficientReservedStockError{InventoryID: i.ID, Reserved: i.ReservedQuantity, Requested: qty}
	}
	i.ReservedQuantity -= qty
	i.TotalQuantity -= qty
	i.touch()
	return nil
}

func (i *Inventory) touch() {
	i.Version++
	i.UpdatedAt = time.Now().UTC()
}
