package order

import (
	"time"
)

// OrderSummary is the admin view of an order. Card data beyond the last four
// digits is never stored, and the processor capture is left to the status route.
type OrderSummary struct {
	OrderID            string    `json:"orderId"`
	PaymentStatus      string    `json:"paymentStatus"`
	Amount             string    `json:"amount"`
	Email              string    `json:"email"`
	CardLast4          string    `json:"cardLast4,omitempty"`
	PaymentProcessorID string    `json:"paymentProcessorId,omitempty"`
	ResponseMessage    string    `json:"responseMessage,omitempty"`
	ShipsToDealer      bool      `json:"shipsToDealer"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type OrdersResponse struct {
	Orders []OrderSummary `json:"orders"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

type StatsResponse struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

func ToSummary(o *Order) OrderSummary {
	s := OrderSummary{
		OrderID:       o.OrderID,
		PaymentStatus: o.PaymentStatus,
		Amount:        o.Amount.StringFixed(2),
		Email:         o.Email,
		CardLast4:     o.CardLast4,
		ShipsToDealer: len(o.Dealer) > 0 && string(o.Dealer) != "null",
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.PaymentProcessorID != nil {
		s.PaymentProcessorID = *o.PaymentProcessorID
	}
	if o.ResponseMessage != nil {
		s.ResponseMessage = *o.ResponseMessage
	}
	return s
}
