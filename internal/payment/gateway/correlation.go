package gateway

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const correlationPrefix = "CONV-"

// CorrelationID builds the conversation identifier sent with a payment intent:
// CONV-{orderId}-{unix seconds}.
func CorrelationID(orderID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s%s-%d", correlationPrefix, orderID, at.Unix())
}

// ParseCorrelationID extracts the order id from a conversation identifier.
func ParseCorrelationID(s string) (uuid.UUID, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, correlationPrefix) {
		return uuid.Nil, false
	}
	rest := s[len(correlationPrefix):]
	// canonical uuid text is 36 characters
	if len(rest) < 38 || rest[36] != '-' {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest[:36])
	if err != nil {
		return uuid.Nil, false
	}
	if _, err := strconv.ParseInt(rest[37:], 10, 64); err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// NewBasketID returns a fresh basket identifier for a payment intent.
func NewBasketID() string {
	return "BSK-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
