package coupon

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRejected matches every *Rejection through errors.Is.
var ErrRejected = errors.New("coupon rejected")

// Reason categorises why a coupon cannot be applied. It is safe to show to customers.
type Reason string

const (
	ReasonNotFound             Reason = "NOT_FOUND"
	ReasonInactive             Reason = "INACTIVE"
	ReasonNotStarted           Reason = "NOT_STARTED"
	ReasonExpired              Reason = "EXPIRED"
	ReasonBelowMinimum         Reason = "BELOW_MINIMUM"
	ReasonProductNotApplicable Reason = "PRODUCT_NOT_APPLICABLE"
	ReasonUserNotApplicable    Reason = "USER_NOT_APPLICABLE"
	ReasonUsageLimitReached    Reason = "USAGE_LIMIT_REACHED"
	ReasonCustomerLimitReached Reason = "CUSTOMER_LIMIT_REACHED"
	ReasonMisconfigured        Reason = "MISCONFIGURED"
	ReasonBuyConditionUnmet    Reason = "BUY_CONDITION_UNMET"
	ReasonGetConditionUnmet    Reason = "GET_CONDITION_UNMET"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:             "coupon code does not exist",
	ReasonInactive:             "coupon is not active",
	ReasonNotStarted:           "coupon is not valid yet",
	ReasonExpired:              "coupon has expired",
	ReasonBelowMinimum:         "cart total is below the coupon minimum",
	ReasonProductNotApplicable: "coupon does not apply to the products in the cart",
	ReasonUserNotApplicable:    "coupon is not available for this account",
	ReasonUsageLimitReached:    "coupon usage limit reached",
	ReasonCustomerLimitReached: "coupon already used the maximum number of times",
	ReasonMisconfigured:        "coupon is misconfigured",
	ReasonBuyConditionUnmet:    "cart does not contain the items required by the coupon",
	ReasonGetConditionUnmet:    "cart does not contain the items the coupon makes free",
}

// Message returns a human readable description of the reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// Rejection reports why a coupon was refused.
type Rejection struct {
	Code   string
	Reason Reason
}

func reject(code string, reason Reason) *Rejection {
	return &Rejection{Code: code, Reason: reason}
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", r.Code, r.Reason.Message())
}

// ErrorCode is the reason category rendered to API clients.
func (r *Rejection) ErrorCode() string { return string(r.Reason) }

// StatusCode maps rejections to 422.
func (r *Rejection) StatusCode() int { return http.StatusUnprocessableEntity }

// ErrorDetails carries the rejected code.
func (r *Rejection) ErrorDetails() any {
	return map[string]string{"coupon": r.Code, "reason": string(r.Reason)}
}

// Is reports ErrRejected as a match.
func (r *Rejection) Is(target error) bool {
	return target == ErrRejected
}

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
