package velocity

import (
	"math"
	"time"

	"agentauth/pkg/domain"
)

// Thresholds.
const (
	SpikeMultiplier          = 3.0
	FirstTransactionHighMark = domain.Amount(100000) // $1,000
	MaxPerMinute             = 10
	WarnPerMinute            = 7
	NewMerchantHighValue     = domain.Amount(50000) // $500
	ImpossibleTravelWindow   = 2 * time.Hour

	VerifyScore  = 25.0
	DeclineScore = 50.0
	maxScore     = 100.0
)

var suspiciousHours = map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true}

// Evaluate runs the five rules against state and aggregates them. It does no
// I/O.
func Evaluate(tx Transaction, state State) Result {
	rules := []RuleResult{
		checkAmountSpike(tx, state),
		checkFrequency(state),
		checkNewMerchant(tx, state),
		checkGeography(tx, state),
		checkTimeOfDay(tx, state),
	}
	return aggregate(rules)
}

func aggregate(rules []RuleResult) Result {
	var (
		score     float64
		triggered string
	)
	for _, r := range rules {
		switch r.Outcome {
		case Block:
			score += r.Rule.Weight()
			if triggered == "" {
				triggered = r.Reason
			}
		case Warn:
			score += r.Rule.Weight() * 0.5
		}
	}
	// A blocking rule is decisive on its own.
	if triggered != "" {
		score = math.Max(score, DeclineScore)
	}
	score = math.Min(score, maxScore)

	res := Result{RiskScore: score, RuleTriggered: triggered, Rules: rules}
	switch {
	case score >= DeclineScore:
		res.Recommendation = RecommendDecline
	case score >= VerifyScore:
		res.Recommendation = RecommendVerify
		res.Allowed = true
	default:
		res.Recommendation = RecommendAllow
		res.Allowed = true
	}
	return res
}

func checkAmountSpike(tx Transaction, state State) RuleResult {
	r := RuleResult{Rule: RuleAmountSpike, Outcome: Pass}
	if !state.HasHistory() {
		if tx.Amount > FirstTransactionHighMark {
			r.Outcome = Warn
			r.Reason = "first_transaction_high_value"
			r.Details = map[string]any{"amount": tx.Amount}
		}
		return r
	}

	ratio := float64(tx.Amount) / float64(state.AvgAmount)
	details := map[string]any{
		"spike_ratio":    math.Round(ratio*100) / 100,
		"historical_avg": state.AvgAmount,
	}
	switch {
	case ratio >= SpikeMultiplier*2:
		r.Outcome, r.Reason, r.Details = Block, "extreme_amount_spike", details
	case ratio >= SpikeMultiplier:
		r.Outcome, r.Reason, r.Details = Warn, "amount_spike", details
	}
	return r
}

func checkFrequency(state State) RuleResult {
	r := RuleResult{Rule: RuleFrequency, Outcome: Pass}
	switch {
	case state.RecentCount >= MaxPerMinute:
		r.Outcome = Block
		r.Reason = "frequency_limit_exceeded"
		r.Details = map[string]any{"count": state.RecentCount, "limit": MaxPerMinute, "window": "1m"}
	case state.RecentCount >= WarnPerMinute:
		r.Outcome = Warn
		r.Reason = "approaching_frequency_limit"
		r.Details = map[string]any{"count": state.RecentCount}
	}
	return r
}

func checkNewMerchant(tx Transaction, state State) RuleResult {
	r := RuleResult{Rule: RuleNewMerchant, Outcome: Pass}
	if tx.MerchantID == "" || state.KnownMerchant {
		return r
	}
	switch {
	case tx.Amount >= NewMerchantHighValue*2:
		r.Outcome = Block
		r.Reason = "new_merchant_extreme_value"
		r.Details = map[string]any{"merchant_id": tx.MerchantID, "amount": tx.Amount, "threshold": NewMerchantHighValue}
	case tx.Amount >= NewMerchantHighValue:
		r.Outcome = Warn
		r.Reason = "new_merchant_high_value"
		r.Details = map[string]any{"merchant_id": tx.MerchantID, "amount": tx.Amount}
	}
	return r
}

func checkGeography(tx Transaction, state State) RuleResult {
	r := RuleResult{Rule: RuleGeographic, Outcome: Pass}
	if tx.Country == "" || state.LastCountry == "" || tx.Country == state.LastCountry {
		return r
	}
	r.Details = map[string]any{"last_location": state.LastCountry, "current_location": tx.Country}
	if !state.LastAt.IsZero() {
		since := tx.At.Sub(state.LastAt)
		if since < ImpossibleTravelWindow {
			r.Outcome = Block
			r.Reason = "impossible_travel"
			r.Details["time_since_last_minutes"] = int(since.Minutes())
			return r
		}
	}
	r.Outcome = Warn
	r.Reason = "location_change"
	return r
}

func checkTimeOfDay(tx Transaction, state State) RuleResult {
	r := RuleResult{Rule: RuleTimeOfDay, Outcome: Pass}
	hour := tx.At.UTC().Hour()
	if !suspiciousHours[hour] || state.TypicalHours[hour] {
		return r
	}
	r.Outcome = Warn
	r.Reason = "unusual_hour"
	r.Details = map[string]any{"hour": hour}
	return r
}

// NextAverage folds amount into the running average with an exponential
// moving average. The first amount seeds the average.
func NextAverage(prev, amount domain.Amount) domain.Amount {
	const alpha = 0.1
	if prev <= 0 {
		return amount
	}
	return domain.Amount(math.Round(alpha*float64(amount) + (1-alpha)*float64(prev)))
}
