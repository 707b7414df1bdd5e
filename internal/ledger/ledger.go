// Package ledger talks to the platform's Fitness Points service. Video
// analyses are paid features: submission debits the ledger unless the
// user's subscription waives the cost, and accepted community reviews
// credit a bonus back.
package ledger

import (
	"context"
	"fmt"
)

// Balance is a user's current Fitness Points position.
type Balance struct {
	UserID       string `json:"user_id"`
	Available    int    `json:"available"`
	Subscription string `json:"subscription"`
}

// Premium reports whether the subscription tier waives paid-feature
// costs.
func (b Balance) Premium() bool {
	return b.Subscription == "premium" || b.Subscription == "pro"
}

// Ledger is the economic backend consumed by the submission gate and
// the review gateway.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (Balance, error)
	Debit(ctx context.Context, userID string, amount int, reference string) error
	Credit(ctx context.Context, userID string, amount int, reference string) error
}

// InsufficientFundsError is returned by Debit when the user cannot
// cover the amount. Shortfall carries how many points are missing so
// the API can tell the user exactly what to top up.
type InsufficientFundsError struct {
	Required  int
	Available int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient fitness points: need %d, have %d", e.Required, e.Available)
}

func (e *InsufficientFundsError) Shortfall() int {
	return e.Required - e.Available
}

// GatingDecision is the outcome of a pre-submission affordability check.
type GatingDecision struct {
	Allowed          bool `json:"allowed"`
	Cost             int  `json:"cost"`
	Available        int  `json:"available"`
	Shortfall        int  `json:"shortfall,omitempty"`
	WaivedBySub      bool `json:"waived_by_subscription"`
}

// CheckGate evaluates whether a user can afford a paid feature without
// committing a debit. Premium subscriptions waive the cost entirely.
func CheckGate(ctx context.Context, l Ledger, userID string, cost int) (GatingDecision, error) {
	bal, err := l.GetBalance(ctx, userID)
	if err != nil {
		return GatingDecision{}, fmt.Errorf("gating check for user %s: %w", userID, err)
	}
	d := GatingDecision{Cost: cost, Available: bal.Available}
	if bal.Premium() {
		d.Allowed = true
		d.WaivedBySub = true
		return d, nil
	}
	if bal.Available >= cost {
		d.Allowed = true
		return d, nil
	}
	d.Shortfall = cost - bal.Available
	return d, nil
}
