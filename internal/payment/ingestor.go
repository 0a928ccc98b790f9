package payment

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"strings"

	errors "github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/core/events"
	paymentgatewaytypes "github.com/carnimore/checkout/internal/core/datamodel/paymentgateway"
	"github.com/carnimore/checkout/internal/order"
	"github.com/carnimore/checkout/pkg/logger"
	"gorm.io/datatypes"
)

const redacted = "[REDACTED]"

var (
	restrictKeyFields = []string{paymentgatewaytypes.FieldPostbackRestrictKey, paymentgatewaytypes.FieldRestrictKey}
	orderIDFields     = []string{paymentgatewaytypes.FieldPostbackOrderID, paymentgatewaytypes.FieldOrderID}
)

type IngestorConfig struct {
	RestrictKey string
	// RequireRestrictKey rejects postbacks that carry no restrict key at all.
	RequireRestrictKey bool
}

// Acknowledgement is what the gateway gets back for an applied postback.
type Acknowledgement struct {
	Status        string
	Message       string
	TransactionID string
	AuthCode      string
	OrderID       string
}

// Ingestor applies gateway postbacks to orders. Each call is independent of
// the request that created the order; the only link is the echoed order id.
type Ingestor struct {
	repo      order.RepositoryAPI
	publisher EventPublisher
	config    IngestorConfig
	logger    *slog.Logger
}

func NewIngestor(repo order.RepositoryAPI, publisher EventPublisher, config IngestorConfig, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
	}
}

// processorCapture is stored as payment_processor_response. It holds no
// timestamps so a redelivered postback writes identical bytes.
type processorCapture struct {
	Format       Format  `json:"format"`
	Raw          string  `json:"raw"`
	Fields       Fields  `json:"fields"`
	Outcome      Outcome `json:"outcome"`
	XactID       string  `json:"transactionId"`
	AuthCode     string  `json:"authCode,omitempty"`
	AVSResponse  string  `json:"avsResponse,omitempty"`
	CVV2Response string  `json:"cvv2Response,omitempty"`
}

func (i *Ingestor) Ingest(ctx context.Context, body []byte) (*Acknowledgement, error) {
	log := logger.FromOr(ctx, i.logger)

	parsed := ParsePostback(body)
	if !parsed.Recognized() {
		log.Warn("postback body not recognized", "size", len(body))
		return nil, errors.ErrPostbackUnrecognized
	}
	fields := parsed.Fields

	if err := i.authenticate(fields); err != nil {
		log.Warn("postback rejected", "format", parsed.Format, "reason", err.Error())
		return nil, err
	}

	orderID := fields.First(orderIDFields...)
	if orderID == "" {
		log.Warn("postback missing order id", "format", parsed.Format)
		return nil, errors.ErrPostbackMissingOrderID
	}
	log = log.With("order_id", orderID)

	xactID := fields.First(paymentgatewaytypes.FieldXactID)
	if xactID == "" {
		log.Warn("postback missing transaction id", "format", parsed.Format)
		return nil, errors.ErrPostbackMissingTransaction
	}

	outcome := DecodeOutcome(
		fields.First(paymentgatewaytypes.FieldFullResponse),
		fields.First(paymentgatewaytypes.FieldResponse),
	)

	capture := processorCapture{
		Format:       parsed.Format,
		Raw:          redactRaw(parsed.Format, body),
		Fields:       i.redactFields(fields),
		Outcome:      outcome,
		XactID:       xactID,
		AuthCode:     fields.First(paymentgatewaytypes.FieldAuthCode),
		AVSResponse:  fields.First(paymentgatewaytypes.FieldAVSResponse),
		CVV2Response: fields.First(paymentgatewaytypes.FieldCVV2Response),
	}
	captureJSON, err := json.Marshal(capture)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode processor response", err)
	}

	err = i.repo.UpdateByOrderID(ctx, orderID, order.Reconciliation{
		PaymentStatus:            outcome.Status,
		PaymentProcessorID:       xactID,
		ResponseMessage:          outcome.Message,
		PaymentProcessorResponse: datatypes.JSON(captureJSON),
	})
	if err != nil {
		log.Error("failed to reconcile postback", "transaction_id", xactID, "error", err)
		return nil, err
	}

	log.Info("postback reconciled",
		"format", parsed.Format,
		"status", outcome.Status,
		"transaction_id", xactID,
		"message", outcome.Message)

	if i.publisher != nil {
		_ = i.publisher.Publish(ctx, events.NewPaymentStatusEvent(orderID, outcome.Status, xactID, outcome.Message))
	}

	return &Acknowledgement{
		Status:        outcome.Status,
		Message:       outcome.Message,
		TransactionID: xactID,
		AuthCode:      capture.AuthCode,
		OrderID:       orderID,
	}, nil
}

// authenticate compares every restrict key the postback carries against the
// configured secret in constant time.
func (i *Ingestor) authenticate(fields Fields) error {
	present := false
	for _, name := range restrictKeyFields {
		value, ok := fields[name]
		if !ok {
			continue
		}
		present = true
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(value)), []byte(i.config.RestrictKey)) != 1 {
			return errors.ErrPostbackUnauthorized
		}
	}

	if !present && i.config.RequireRestrictKey {
		return errors.ErrPostbackUnauthorized
	}
	return nil
}

// redactRaw blanks the restrict key field values in the body as received,
// leaving every other byte of a delimited body untouched.
func redactRaw(format Format, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var doc map[string]interface{}
		if err := dec.Decode(&doc); err != nil {
			return redacted
		}
		redactJSON("", doc)
		out, err := json.Marshal(doc)
		if err != nil {
			return redacted
		}
		return string(out)
	case FormatDelimited:
		raw := string(trimmed)
		sep := ","
		if strings.Contains(raw, ";") {
			sep = ";"
		}
		parts := strings.Split(raw, sep)
		for n, part := range parts {
			key, _, found := strings.Cut(part, "=")
			if found && isRestrictKeyField(strings.TrimSpace(key)) {
				parts[n] = key + "=" + redacted
			}
		}
		return strings.Join(parts, sep)
	default:
		return redacted
	}
}

// redactJSON walks keys the way flatten names them.
func redactJSON(prefix string, node map[string]interface{}) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if isRestrictKeyField(key) {
			node[k] = redacted
			continue
		}
		if child, ok := v.(map[string]interface{}); ok {
			redactJSON(key, child)
		}
	}
}

func isRestrictKeyField(name string) bool {
	for _, field := range restrictKeyFields {
		if name == field {
			return true
		}
	}
	return false
}

func (i *Ingestor) redactFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for _, name := range restrictKeyFields {
		if _, ok := out[name]; ok {
			out[name] = redacted
		}
	}
	return out
}
