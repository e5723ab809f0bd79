package domain

import "time"

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

type ReservationConfirmed struct {
	ReservationID int64  `json:"reservationId"`
	OrderID       string `json:"orderId"`
}

type ReservationCancelledEvent struct {
	ReservationID int64  `json:"reservationId"`
	OrderID       string `json:"orderId"`
	Reason        string `json:"reason"`
}
