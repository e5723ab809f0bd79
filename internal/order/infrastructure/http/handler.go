package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/commerce-core/stock-reservation-saga/internal/order/application"
	"github.com/commerce-core/stock-reservation-saga/internal/order/domain"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type createOrderReq struct {
	Customer string `json:"customer"`
	Items    []struct {
		ProductID  string `json:"productId"`
		Quantity   int    `json:"quantity"`
		PriceCents int64  `json:"priceCents"`
	} `json:"items"`
}

type orderResp struct {
	ID           string          `json:"id"`
	OrderNumber  string          `json:"orderNumber"`
	Customer     string          `json:"customer"`
	Status       domain.Status   `json:"status"`
	CancelReason string          `json:"cancelReason,omitempty"`
	Items        []orderItemResp `json:"items"`
}

type orderItemResp struct {
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	items := make([]domain.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.Item{ProductID: item.ProductID, Quantity: item.Quantity, PriceCents: item.PriceCents})
	}

	o, err := h.service.CreateOrder(ctx, req.Customer, items, r.Header.Get("traceparent"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(toResp(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(toResp(o))
}

// writeError is the single place the error taxonomy maps to HTTP statuses,
// regardless of where in the call stack the error originated.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound   *domain.NotFoundError
		transition *domain.TransitionError
		validation *application.ValidationError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &transition):
		status = http.StatusConflict
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func toResp(o domain.Order) orderResp {
	items := make([]orderItemResp, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResp{ProductID: item.ProductID, Quantity: item.Quantity, PriceCents: item.PriceCents})
	}
	return orderResp{
		ID:           o.ID,
		OrderNumber:  o.OrderNumber,
		Customer:     o.Customer,
		Status:       o.Status,
		CancelReason: o.CancelReason,
		Items:        items,
	}
}
