package payment

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	errors "github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/core/common/validation"
	orderDatamodel "github.com/carnimore/checkout/internal/core/datamodel/order"
	"github.com/shopspring/decimal"
)

var (
	cardNumberPattern = regexp.MustCompile(`^[0-9]{12,19}$`)
	cvvPattern        = regexp.MustCompile(`^[0-9]{3,4}$`)
)

// ChargeRequest is the storefront's checkout submission.
type ChargeRequest struct {
	OrderID    string                    `json:"orderId"`
	CardNumber string                    `json:"cardNumber"`
	ExpMonth   int                       `json:"expMonth"`
	ExpYear    int                       `json:"expYear"`
	CVV        string                    `json:"cvv"`
	Amount     decimal.Decimal           `json:"amount"`
	Email      string                    `json:"email"`
	Phone      string                    `json:"phone"`
	Billing    orderDatamodel.Address    `json:"billing"`
	Shipping   orderDatamodel.Address    `json:"shipping"`
	Items      []orderDatamodel.LineItem `json:"items"`
	Dealer     *orderDatamodel.Dealer    `json:"dealer,omitempty"`
}

// ShipsToDealer reports whether the order goes to a licensed dealer, in which
// case the buyer's shipping address is not needed.
func (r *ChargeRequest) ShipsToDealer() bool {
	return r.Dealer != nil &&
		strings.TrimSpace(r.Dealer.Name) != "" &&
		strings.TrimSpace(r.Dealer.LicenseNumber) != ""
}

// Normalize strips the separators shoppers type into card numbers.
func (r *ChargeRequest) Normalize() {
	r.OrderID = strings.TrimSpace(r.OrderID)
	r.CardNumber = strings.NewReplacer(" ", "", "-", "").Replace(r.CardNumber)
	r.CVV = strings.TrimSpace(r.CVV)
	r.Email = strings.TrimSpace(r.Email)
}

func (r *ChargeRequest) Validate() error {
	validator := validation.NewValidator()

	if r.OrderID != "" {
		validator.Field("orderId", r.OrderID).Required().
			Matches(validation.OrderIDPattern, errors.ErrCodeInvalidOrderID)
	}

	validator.Field("cardNumber", r.CardNumber).Required().
		Matches(cardNumberPattern, errors.ErrCodeValidationFailed)
	validator.Field("expMonth", r.ExpMonth).Required().
		MinInt(1, errors.ErrCodeValidationFailed).
		MaxInt(12, errors.ErrCodeValidationFailed)
	validator.Field("expYear", r.ExpYear).Required().
		MinInt(2000, errors.ErrCodeValidationFailed).
		MaxInt(2099, errors.ErrCodeValidationFailed)
	validator.Field("cvv", r.CVV).Required().
		Matches(cvvPattern, errors.ErrCodeValidationFailed)
	validator.Field("amount", r.Amount).
		Positive(errors.ErrCodeInvalidAmount).
		MaxDecimalPlaces(2, errors.ErrCodeInvalidAmount)
	validator.Field("email", r.Email).Required().Email()
	validator.Field("items", len(r.Items)).
		MinInt(1, errors.ErrCodeValidationFailed)

	addressFields("billing", r.Billing, validator)
	if !r.ShipsToDealer() {
		addressFields("shipping", r.Shipping, validator)
	}

	for i, item := range r.Items {
		prefix := "items[" + strconv.Itoa(i) + "]"
		validator.Field(prefix+".name", item.Name).Required()
		validator.Field(prefix+".quantity", item.Quantity).
			MinInt(1, errors.ErrCodeValidationFailed)
		validator.Field(prefix+".price", item.Price).
			Custom(func(v interface{}) *errors.AppError {
				if d, ok := v.(decimal.Decimal); ok && d.IsNegative() {
					return errors.NewValidationFieldError(prefix+".price", prefix+".price cannot be negative", errors.ErrCodeInvalidAmount)
				}
				return nil
			})
	}

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func addressFields(prefix string, a orderDatamodel.Address, validator *validation.ValidationBuilder) {
	validator.Field(prefix+".firstName", a.FirstName).Required()
	validator.Field(prefix+".lastName", a.LastName).Required()
	validator.Field(prefix+".address1", a.Address1).Required()
	validator.Field(prefix+".city", a.City).Required()
	validator.Field(prefix+".state", a.State).Required()
	validator.Field(prefix+".zip", a.Zip).Required()
}

type ChargeResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

type PostbackResponse struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId"`
	AuthCode      string `json:"authCode"`
	OrderID       string `json:"orderId"`
}

type StatusResponse struct {
	Success           bool            `json:"success"`
	Status            string          `json:"status"`
	OrderID           string          `json:"orderId"`
	ProcessorResponse json.RawMessage `json:"processorResponse"`
}

type NotFoundResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"orderId"`
}

// FailureResponse is the body of every failed charge or postback. Error
// carries the machine-readable code.
type FailureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
