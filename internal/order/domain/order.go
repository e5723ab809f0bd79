package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// transitions lists the legal next statuses. DELIVERED and CANCELLED are
// terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order not found: %s", e.Ref)
}

type TransitionError struct {
	OrderNumber string
	From        Status
	To          Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: illegal transition %s -> %s", e.OrderNumber, e.From, e.To)
}

type Order struct {
	ID           string
	OrderNumber  string
	Customer     string
	Items        []Item
	Status       Status
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Item struct {
	ProductID  string
	Quantity   int
	PriceCents int64
}

func NewOrder(customer string, items []Item) Order {
	id := uuid.NewString()
	now := time.Now().UTC()
	return Order{
		ID:          id,
		OrderNumber: "ORD-" + strings.ToUpper(id[:8]),
		Customer:    customer,
		Items:       items,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (o *Order) Confirm() error {
	return o.transitionTo(StatusConfirmed)
}

func (o *Order) Cancel(reason string) error {
	if err := o.transitionTo(StatusCancelled); err != nil {
		return err
	}
	o.CancelReason = reason
	return nil
}

func (o *Order) Ship() error {
	return o.transitionTo(StatusShipped)
}

func (o *Order) Deliver() error {
	return o.transitionTo(StatusDelivered)
}

func (o *Order) transitionTo(next Status) error {
	for _, allowed := range transitions[o.Status] {
		if allowed == next {
			o.Status = next
			o.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return &TransitionError{OrderNumber: o.OrderNumber, From: o.Status, To: next}
}
