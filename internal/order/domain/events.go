package domain

import "time"

// Outbound saga requests.

type ReservationRequested struct {
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type ReservationConfirmRequested struct {
	ReservationID int64 `json:"reservationId"`
}

type ReservationCancelRequested struct {
	ReservationID int64  `json:"reservationId"`
	Reason        string `json:"reason"`
}

// Inbound saga outcomes. OrderID carries the order number, the saga key
// every topic is partitioned by.

type ReservationCreated struct {
	ReservationID int64     `json:"reservationId"`
	OrderID       string    `json:"orderId"`
	ProductID     string    `json:"productId"`
	Quantity      int       `json:"quantity"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type ReservationFailed struct {
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

type PaymentCompleted struct {
	OrderID string `json:"orderId"`
}

type PaymentFailed struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}
