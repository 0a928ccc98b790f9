package order

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// Order is the only record shared between charge initiation and postback
// reconciliation. OrderID is the correlation key carried through the gateway.
type Order struct {
	ID                       int64           `gorm:"primaryKey"`
	OrderID                  string          `gorm:"column:order_id;size:64;not null;uniqueIndex"`
	PaymentStatus            string          `gorm:"column:payment_status;size:16;not null;index"`
	PaymentProcessorID       *string         `gorm:"column:payment_processor_id;size:128"`
	PaymentProcessorResponse datatypes.JSON  `gorm:"column:payment_processor_response;type:jsonb"`
	ResponseMessage          *string         `gorm:"column:response_message"`
	Amount                   decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Email                    string          `gorm:"column:email;not null"`
	Phone                    string          `gorm:"column:phone"`
	BillingAddress           datatypes.JSON  `gorm:"column:billing_address;type:jsonb"`
	ShippingAddress          datatypes.JSON  `gorm:"column:shipping_address;type:jsonb"`
	Dealer                   datatypes.JSON  `gorm:"column:dealer;type:jsonb"`
	Items                    datatypes.JSON  `gorm:"column:items;type:jsonb"`
	CardLast4                string          `gorm:"column:card_last4;size:4"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) IsTerminal() bool {
	return o.PaymentStatus == StatusPaid || o.PaymentStatus == StatusFailed
}

type Address struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country,omitempty"`
}

func (a Address) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Dealer is the licensed firearms dealer an order ships to instead of the buyer.
type Dealer struct {
	Name          string `json:"name"`
	LicenseNumber string `json:"licenseNumber"`
	Address1      string `json:"address1,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Zip           string `json:"zip,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// StatusCount is one row of the per-status aggregate.
type StatusCount struct {
	PaymentStatus string `gorm:"column:payment_status" json:"status"`
	Count         int64  `gorm:"column:count" json:"count"`
}
