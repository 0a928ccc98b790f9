package payment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"

	errors "github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/core/events"
	paymentgatewaytypes "github.com/carnimore/checkout/internal/core/datamodel/paymentgateway"
	"github.com/carnimore/checkout/internal/order"
	"github.com/carnimore/checkout/internal/paymentgateway"
	"github.com/carnimore/checkout/pkg/logger"
	"gorm.io/datatypes"
)

type GatewayAPI interface {
	Authorize(ctx context.Context, req *paymentgatewaytypes.AuthorizationRequest) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type InitiatorConfig struct {
	AccountID               string
	RestrictKey             string
	TransactionType         string
	TransactionIndustryType string
	PostbackURL             string
	PostbackDescription     string
}

type ChargeResult struct {
	OrderID string
	Message string
}

// Initiator creates the pending order and hands the charge to the gateway.
// It never waits for the outcome; that arrives later as a postback.
type Initiator struct {
	repo      order.RepositoryAPI
	gateway   GatewayAPI
	publisher EventPublisher
	ids       OrderIDGenerator
	config    InitiatorConfig
	logger    *slog.Logger
}

func NewInitiator(repo order.RepositoryAPI, gateway GatewayAPI, publisher EventPublisher, ids OrderIDGenerator, config InitiatorConfig, logger *slog.Logger) *Initiator {
	return &Initiator{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		ids:       ids,
		config:    config,
		logger:    logger,
	}
}

func (s *Initiator) Initiate(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = s.ids.NextOrderID()
	}
	log := logger.FromOr(ctx, s.logger).With("order_id", orderID)

	pending, err := s.newPendingOrder(orderID, req)
	if err != nil {
		return nil, err
	}

	// the row must exist before the gateway can possibly post back
	if err := s.repo.Insert(ctx, pending); err != nil {
		log.Error("failed to create pending order", "error", err)
		return nil, err
	}
	log.Info("pending order created", "amount", pending.Amount.StringFixed(2))

	if err := s.gateway.Authorize(ctx, s.authorizationRequest(orderID, req)); err != nil {
		log.Error("gateway did not accept charge, order stays pending", "error", err)
		return nil, gatewayError(err)
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, events.NewPaymentInitiatedEvent(orderID, pending.Amount.StringFixed(2)))
	}

	log.Info("charge submitted to gateway")
	return &ChargeResult{
		OrderID: orderID,
		Message: "Payment submitted; awaiting gateway confirmation",
	}, nil
}

func (s *Initiator) newPendingOrder(orderID string, req *ChargeRequest) (*order.Order, error) {
	billing, err := json.Marshal(req.Billing)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode billing address", err)
	}
	items, err := json.Marshal(req.Items)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode line items", err)
	}

	o := &order.Order{
		OrderID:        orderID,
		PaymentStatus:  order.StatusPending,
		Amount:         req.Amount,
		Email:          req.Email,
		Phone:          req.Phone,
		BillingAddress: datatypes.JSON(billing),
		Items:          datatypes.JSON(items),
		CardLast4:      req.CardNumber[len(req.CardNumber)-4:],
	}

	if req.ShipsToDealer() {
		dealer, err := json.Marshal(req.Dealer)
		if err != nil {
			return nil, errors.NewInternalError("failed to encode dealer", err)
		}
		o.Dealer = datatypes.JSON(dealer)
	} else {
		shipping, err := json.Marshal(req.Shipping)
		if err != nil {
			return nil, errors.NewInternalError("failed to encode shipping address", err)
		}
		o.ShippingAddress = datatypes.JSON(shipping)
	}

	return o, nil
}

func (s *Initiator) authorizationRequest(orderID string, req *ChargeRequest) *paymentgatewaytypes.AuthorizationRequest {
	country := req.Billing.Country
	if country == "" {
		country = "US"
	}

	return &paymentgatewaytypes.AuthorizationRequest{
		AccountID:               s.config.AccountID,
		RestrictKey:             s.config.RestrictKey,
		TransactionType:         s.config.TransactionType,
		TransactionIndustryType: s.config.TransactionIndustryType,
		Amount:                  req.Amount.StringFixed(2),
		BillingName:             req.Billing.FullName(),
		BillingAddress1:         req.Billing.Address1,
		BillingAddress2:         req.Billing.Address2,
		BillingCity:             req.Billing.City,
		BillingState:            req.Billing.State,
		BillingZip:              req.Billing.Zip,
		BillingCountry:          country,
		BillingEmail:            req.Email,
		BillingPhone:            req.Phone,
		CardNumber:              req.CardNumber,
		CardExpMonth:            fmt.Sprintf("%02d", req.ExpMonth),
		CardExpYear:             strconv.Itoa(req.ExpYear),
		CVV2:                    req.CVV,
		PostbackID:              s.config.PostbackURL,
		PostbackDescription:     s.config.PostbackDescription,
		OrderID:                 orderID,
	}
}

func gatewayError(err error) *errors.AppError {
	var acceptanceErr *paymentgateway.AcceptanceError
	if stderrors.As(err, &acceptanceErr) {
		return errors.NewUpstreamError(
			fmt.Sprintf("payment gateway rejected the request (status %d)", acceptanceErr.StatusCode),
			errors.ErrCodeGatewayRejected, err)
	}
	return errors.NewUpstreamError("payment gateway is unavailable", errors.ErrCodeGatewayUnavailable, err)
}
