// Package gatewaysim is a stand-in for the card gateway: it accepts the
// authorization form, answers immediately, and later delivers a postback to
// the URL the request named.
package gatewaysim

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	gw "github.com/carnimore/checkout/internal/core/datamodel/paymentgateway"
)

const (
	FormatDelimited = "delimited"
	FormatJSON      = "json"
)

// Card suffixes that steer the simulated outcome.
const (
	DeclineSuffix = "0002"
	InterimSuffix = "0119"
)

type Config struct {
	AccountID     string
	RestrictKey   string
	Workers       int
	QueueSize     int
	Format        string
	Deliveries    int
	DeliveryDelay time.Duration
}

type Simulator struct {
	config Config
	client *http.Client
	pool   *pool
	logger *slog.Logger
}

// New starts the worker pool. client delivers postbacks; nil uses a client
// with a 10s timeout.
func New(config Config, client *http.Client, logger *slog.Logger) *Simulator {
	if config.Deliveries <= 0 {
		config.Deliveries = 1
	}
	if config.Format == "" {
		config.Format = FormatDelimited
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	s := &Simulator{
		config: config,
		client: client,
		pool:   newPool(config.Workers, config.QueueSize, logger),
		logger: logger,
	}
	s.pool.start(s.process)
	return s
}

func (s *Simulator) Shutdown() {
	s.pool.shutdown()
}

// ServeHTTP accepts an authorization request. A 200 only means the request
// was queued; the decision arrives by postback.
func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	if r.PostForm.Get(gw.FieldAccountID) != s.config.AccountID ||
		subtle.ConstantTimeCompare([]byte(r.PostForm.Get(gw.FieldRestrictKey)), []byte(s.config.RestrictKey)) != 1 {
		s.logger.Warn("authorization rejected: bad credentials", "remote_addr", r.RemoteAddr)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	job := Job{
		OrderID:     r.PostForm.Get(gw.FieldPostbackOrderID),
		Amount:      r.PostForm.Get(gw.FieldAmount),
		CardLast4:   lastFour(r.PostForm.Get(gw.FieldCardNumber)),
		PostbackURL: r.PostForm.Get(gw.FieldPostbackID),
		RestrictKey: r.PostForm.Get(gw.FieldPostbackRestrictKey),
	}
	if job.OrderID == "" || job.PostbackURL == "" || job.Amount == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	if !s.pool.enqueue(job) {
		s.logger.Error("job queue full", "order_id", job.OrderID)
		http.Error(w, "queue full", http.StatusServiceUnavailable)
		return
	}

	s.logger.Info("authorization accepted", "order_id", job.OrderID, "amount", job.Amount)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Accepted")
}

// Decide returns the FullResponse value for a card.
func Decide(cardLast4 string) string {
	switch cardLast4 {
	case DeclineSuffix:
		return "NDECLINED"
	case InterimSuffix:
		return "PREVIEW"
	default:
		return "YAPPROVED"
	}
}

func (s *Simulator) process(job Job) {
	if s.config.DeliveryDelay > 0 {
		time.Sleep(s.config.DeliveryDelay)
	}

	// every delivery of one job carries the same transaction
	fields := postbackFields(job, uuid.NewString())
	body, contentType, err := encode(s.config.Format, fields)
	if err != nil {
		s.logger.Error("failed to encode postback", "order_id", job.OrderID, "error", err)
		return
	}

	for attempt := 1; attempt <= s.config.Deliveries; attempt++ {
		if err := s.deliver(job.PostbackURL, body, contentType); err != nil {
			s.logger.Error("postback delivery failed",
				"order_id", job.OrderID,
				"attempt", attempt,
				"error", err)
			continue
		}
		s.logger.Info("postback delivered",
			"order_id", job.OrderID,
			"attempt", attempt,
			"response", fields[gw.FieldFullResponse])
	}
}

func (s *Simulator) deliver(url string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build postback request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send postback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("postback answered status %d", resp.StatusCode)
	}
	return nil
}

func postbackFields(job Job, xactID string) map[string]string {
	fullResponse := Decide(job.CardLast4)

	fields := map[string]string{
		gw.FieldPostbackOrderID:     job.OrderID,
		gw.FieldPostbackRestrictKey: job.RestrictKey,
		gw.FieldFullResponse:        fullResponse,
		gw.FieldResponse:            fullResponse[:1],
		gw.FieldXactID:              xactID,
		gw.FieldAVSResponse:         "Y",
		gw.FieldCVV2Response:        "M",
		gw.FieldAmount:              job.Amount,
	}
	if strings.HasPrefix(fullResponse, "Y") {
		fields[gw.FieldAuthCode] = strings.ToUpper(strings.ReplaceAll(xactID, "-", "")[:6])
	}
	return fields
}

// encode renders the postback body. The json format nests dotted names
// ("Postback.OrderID") one level deep, as the gateway does.
func encode(format string, fields map[string]string) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		doc := map[string]interface{}{}
		for key, value := range fields {
			if group, name, ok := strings.Cut(key, "."); ok {
				nested, _ := doc[group].(map[string]interface{})
				if nested == nil {
					nested = map[string]interface{}{}
					doc[group] = nested
				}
				nested[name] = value
				continue
			}
			doc[key] = value
		}
		body, err := json.Marshal(doc)
		return body, "application/json", err
	case FormatDelimited:
		pairs := make([]string, 0, len(fields))
		for _, key := range slices.Sorted(maps.Keys(fields)) {
			pairs = append(pairs, key+"="+fields[key])
		}
		return []byte(strings.Join(pairs, ";")), "text/plain", nil
	default:
		return nil, "", fmt.Errorf("unknown postback format %q", format)
	}
}

func lastFour(cardNumber string) string {
	cardNumber = strings.ReplaceAll(cardNumber, " ", "")
	if len(cardNumber) < 4 {
		return cardNumber
	}
	return cardNumber[len(cardNumber)-4:]
}
