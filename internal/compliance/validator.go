// Package compliance implements C3, the pure function from a contract fact
// to an approval or a structured rejection.
package compliance

import (
	"fmt"
	"strings"

	"github.com/alpespartners/saga-choreography/internal/shared/domain"
)

// RuleID names one of the ordered checks the validator applies.
type RuleID string

const (
	RuleAmountLimits        RuleID = "AmountLimits"
	RuleCurrencyJurisdiction RuleID = "CurrencyJurisdiction"
	RulePartnerReputation   RuleID = "PartnerReputation"
	RuleStateValidity       RuleID = "StateValidity"
	RuleContractTypeRule    RuleID = "ContractTypeRule"
	RuleGeneralValidation   RuleID = "GeneralValidation"
)

const (
	amountCeiling        = 50_000
	amountWarningFloor   = 10_000
	premiumWarningFloor  = 1_000
	minPartnerIDLength   = 10
)

var allowedCurrencies = map[string]bool{"USD": true, "EUR": true, "COP": true, "MXN": true}
var allowedStates = []string{"ACTIVE", "PENDING", "SUSPENDED"}

// ContractFact is the read-only projection the validator consumes.
type ContractFact struct {
	PartnerID  string
	ContractID string
	Amount     float64
	Currency   string
	State      string
	Type       string // optional: Premium, Basic, Enterprise, Standard
}

// Outcome is the ComplianceOutcome produced by Validate. Exactly one of
// Approved or Rejected semantics applies: when FailedRule is empty the
// contract was approved.
type Outcome struct {
	Approved       bool
	ValidatedRules []RuleID
	FailedRule     RuleID
	Cause          string
	Warnings       []string
}

// Validate runs the ordered rule chain. The first failing rule
// short-circuits evaluation and becomes Outcome.FailedRule; a clean run
// produces an Approved outcome listing every rule it passed through.
func Validate(fact ContractFact) Outcome {
	var warnings []string

	// 1. AmountLimits
	if fact.Amount > amountCeiling {
		return Outcome{
			FailedRule: RuleAmountLimits,
			Cause:      fmt.Sprintf("amount %v exceeds maximum of %d", fact.Amount, amountCeiling),
		}
	}
	if fact.Amount > amountWarningFloor {
		warnings = append(warnings, fmt.Sprintf("amount %v exceeds advisory threshold of %d", fact.Amount, amountWarningFloor))
	}
	if strings.EqualFold(fact.Type, "Premium") && fact.Amount < premiumWarningFloor {
		warnings = append(warnings, fmt.Sprintf("premium contract amount %v below advisory floor of %d", fact.Amount, premiumWarningFloor))
	}

	// 2. CurrencyJurisdiction — comparison is case-sensitive by design.
	if !allowedCurrencies[fact.Currency] {
		return Outcome{FailedRule: RuleCurrencyJurisdiction, Cause: "currency not allowed"}
	}

	// 3. PartnerReputation
	if len(fact.PartnerID) < minPartnerIDLength {
		return Outcome{FailedRule: RulePartnerReputation, Cause: "invalid partner id"}
	}

	// 4. StateValidity
	normalizedState := strings.ToUpper(fact.State)
	if err := domain.ValidateEnum("state", normalizedState, allowedStates); err != nil {
		return Outcome{FailedRule: RuleStateValidity, Cause: "invalid contract state"}
	}

	// 5. ContractTypeRule — informational only, never rejects.

	return Outcome{
		Approved: true,
		ValidatedRules: []RuleID{
			RuleAmountLimits, RuleCurrencyJurisdiction, RulePartnerReputation, RuleStateValidity,
		},
		Warnings: warnings,
	}
}

// FailedRuleFromCause maps a free-text cause to a RuleID when an upstream
// participant reports a rejection as a plain string rather than a
// structured Outcome (cause-to-failed-rule mapping).
func FailedRuleFromCause(cause string) RuleID {
	lower := strings.ToLower(cause)
	switch {
	case strings.Contains(lower, "amount"), strings.Contains(lower, "limit"):
		return RuleAmountLimits
	case strings.Contains(lower, "currency"):
		return RuleCurrencyJurisdiction
	case strings.Contains(lower, "partner"):
		return RulePartnerReputation
	case strings.Contains(lower, "state"):
		return RuleStateValidity
	default:
		return RuleGeneralValidation
	}
}
