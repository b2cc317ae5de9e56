package velocity

import (
	"time"

	"agentauth/pkg/domain"
)

// Outcome is one rule's verdict.
type Outcome string

const (
	Pass  Outcome = "pass"
	Warn  Outcome = "warn"
	Block Outcome = "block"
)

// Rule names the five evaluators. Each has a fixed weight in the risk score.
type Rule string

const (
	RuleAmountSpike Rule = "amount_spike"
	RuleFrequency   Rule = "frequency"
	RuleNewMerchant Rule = "new_merchant"
	RuleGeographic  Rule = "geographic"
	RuleTimeOfDay   Rule = "time_anomaly"
)

var ruleWeights = map[Rule]float64{
	RuleAmountSpike: 30,
	RuleFrequency:   25,
	RuleNewMerchant: 20,
	RuleGeographic:  15,
	RuleTimeOfDay:   10,
}

// Weight returns the rule's contribution when it blocks. A warning counts half.
func (r Rule) Weight() float64 { return ruleWeights[r] }

// Recommendation is the aggregate verdict.
type Recommendation string

const (
	RecommendAllow   Recommendation = "allow"
	RecommendVerify  Recommendation = "verify"
	RecommendDecline Recommendation = "decline"
)

// Transaction is what a rule sees about the purchase being evaluated.
type Transaction struct {
	UserID     string
	Amount     domain.Amount
	MerchantID string
	// Country is an ISO-3166 alpha-2 code; empty skips the geographic rule.
	Country string
	At      time.Time
}

// State is the user's history as of the moment before the transaction.
// It never includes the transaction being evaluated.
type State struct {
	AvgAmount     domain.Amount
	RecentCount   int
	KnownMerchant bool
	LastCountry   string
	LastAt        time.Time
	TypicalHours  map[int]bool
}

// HasHistory reports whether an average has been established.
func (s State) HasHistory() bool { return s.AvgAmount > 0 }

// RuleResult is one evaluator's output.
type RuleResult struct {
	Rule    Rule           `json:"rule"`
	Outcome Outcome        `json:"result"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Result aggregates all rules.
type Result struct {
	Allowed        bool           `json:"allowed"`
	RiskScore      float64        `json:"risk_score"`
	RuleTriggered  string         `json:"rule_triggered,omitempty"`
	Recommendation Recommendation `json:"recommendation"`
	Rules          []RuleResult   `json:"rules"`
}

// Reasons returns the reason of every rule that did not pass.
func (r Result) Reasons() []string {
	var out []string
	for _, rr := range r.Rules {
		if rr.Outcome != Pass && rr.Reason != "" {
			out = append(out, rr.Reason)
		}
	}
	return out
}
