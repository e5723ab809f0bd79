package domain

import "time"

type ChangeType string

const (
	ChangeIncrease ChangeType = "INCREASE"
	ChangeDecrease ChangeType = "DECREASE"
	ChangeReserve  ChangeType = "RESERVE"
	ChangeRelease  ChangeType = "RELEASE"
)

// History is one append-only audit row per mutating inventory operation.
// Before/after snapshots track the available pool.
type History struct {
	ID             int64
	InventoryID    int64
	ChangeType     ChangeType
	Quantity       int
	BeforeQuantity int
	AfterQuantity  int
	Reason         string
	ReferenceID    string
	CreatedAt      time.Time
}

func NewHistory(inventoryID int64, change ChangeType, qty, before, after int, reason, referenceID string) History {
	return History{
		InventoryID:    inventoryID,
		ChangeType:     change,
		Quantity:       qty,
		BeforeQuantity: before,
		AfterQuantity:  after,
		Reason:         reason,
		ReferenceID:    referenceID,
		CreatedAt:      time.Now().UTC(),
	}
}
