package payment

import (
	"strings"

	"github.com/carnimore/checkout/internal/order"
)

const (
	codeApproved = 'Y'
	codeDeclined = 'N'
)

type Outcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DecodeOutcome reads the gateway's "first character is the status" response
// convention. Only an uppercase Y or N on the primary field is terminal; any
// other leading character, or an empty field, keeps the order pending. The
// message is whatever follows the code character, taken from the secondary
// field when the primary has none.
func DecodeOutcome(primary, secondary string) Outcome {
	code, message := splitResponse(primary)

	status := order.StatusPending
	switch code {
	case codeApproved:
		status = order.StatusPaid
	case codeDeclined:
		status = order.StatusFailed
	}

	if message == "" {
		_, message = splitResponse(secondary)
	}

	return Outcome{Status: status, Message: message}
}

// splitResponse returns the code character (0 when absent) and the message.
// A string that does not start with a code character is all message.
func splitResponse(s string) (byte, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ""
	}
	if s[0] == codeApproved || s[0] == codeDeclined {
		return s[0], strings.TrimSpace(s[1:])
	}
	return 0, s
}
