package paymentgateway

import (
	"errors"
	"net/url"
)

// Outbound authorization form fields.
const (
	FieldAccountID               = "AccountID"
	FieldRestrictKey             = "RestrictKey"
	FieldTransactionType         = "TransactionType"
	FieldTransactionIndustryType = "TransactionIndustryType"
	FieldAmount                  = "Amount"
	FieldBillingName             = "BillingName"
	FieldBillingAddress1         = "BillingAddress1"
	FieldBillingAddress2         = "BillingAddress2"
	FieldBillingCity             = "BillingCity"
	FieldBillingState            = "BillingState"
	FieldBillingZip              = "BillingZip"
	FieldBillingCountry          = "BillingCountry"
	FieldBillingEmail            = "BillingEmail"
	FieldBillingPhone            = "BillingPhone"
	FieldCardNumber              = "CardNumber"
	FieldCardExpMonth            = "CardExpMonth"
	FieldCardExpYear             = "CardExpYear"
	FieldCVV2                    = "CVV2"
	FieldPostbackID              = "Postback.ID"
	FieldPostbackDescription     = "Postback.Description"
	FieldPostbackRestrictKey     = "Postback.RestrictKey"
	FieldPostbackOrderID         = "Postback.OrderID"
	FieldPostbackFullResponse    = "Postback.FullResponse"
)

// Inbound postback fields. OrderID and RestrictKey are the bare fallbacks for
// the Postback.-prefixed names echoed back by the gateway.
const (
	FieldFullResponse = "FullResponse"
	FieldResponse     = "Response"
	FieldXactID       = "XactID"
	FieldAuthCode     = "AuthCode"
	FieldAVSResponse  = "AVSResponse"
	FieldCVV2Response = "CVV2Response"
	FieldOrderID      = "OrderID"
)

// AuthorizationRequest is one charge sent to the gateway. Card data only
// lives here for the duration of the outbound call.
type AuthorizationRequest struct {
	AccountID               string
	RestrictKey             string
	TransactionType         string
	TransactionIndustryType string
	Amount                  string

	BillingName     string
	BillingAddress1 string
	BillingAddress2 string
	BillingCity     string
	BillingState    string
	BillingZip      string
	BillingCountry  string
	BillingEmail    string
	BillingPhone    string

	CardNumber   string
	CardExpMonth string
	CardExpYear  string
	CVV2         string

	PostbackID          string
	PostbackDescription string
	OrderID             string
}

func (r *AuthorizationRequest) Validate() error {
	if r.AccountID == "" {
		return errors.New("account id is required")
	}
	if r.RestrictKey == "" {
		return errors.New("restrict key is required")
	}
	if r.Amount == "" {
		return errors.New("amount is required")
	}
	if r.OrderID == "" {
		return errors.New("order id is required")
	}
	if r.PostbackID == "" {
		return errors.New("postback destination is required")
	}
	return nil
}

// Form encodes the request the way the gateway expects it. The restrict key
// is echoed in the postback parameters so the postback can be authenticated,
// and Postback.FullResponse asks for the combined code+message response field.
func (r *AuthorizationRequest) Form() url.Values {
	form := url.Values{}
	set := func(key, value string) {
		if value != "" {
			form.Set(key, value)
		}
	}

	set(FieldAccountID, r.AccountID)
	set(FieldRestrictKey, r.RestrictKey)
	set(FieldTransactionType, r.TransactionType)
	set(FieldTransactionIndustryType, r.TransactionIndustryType)
	set(FieldAmount, r.Amount)
	set(FieldBillingName, r.BillingName)
	set(FieldBillingAddress1, r.BillingAddress1)
	set(FieldBillingAddress2, r.BillingAddress2)
	set(FieldBillingCity, r.BillingCity)
	set(FieldBillingState, r.BillingState)
	set(FieldBillingZip, r.BillingZip)
	set(FieldBillingCountry, r.BillingCountry)
	set(FieldBillingEmail, r.BillingEmail)
	set(FieldBillingPhone, r.BillingPhone)
	set(FieldCardNumber, r.CardNumber)
	set(FieldCardExpMonth, r.CardExpMonth)
	set(FieldCardExpYear, r.CardExpYear)
	set(FieldCVV2, r.CVV2)
	set(FieldPostbackID, r.PostbackID)
	set(FieldPostbackDescription, r.PostbackDescription)
	set(FieldPostbackRestrictKey, r.RestrictKey)
	set(FieldPostbackOrderID, r.OrderID)
	form.Set(FieldPostbackFullResponse, "1")

	return form
}
