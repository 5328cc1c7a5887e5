// Package license evaluates proposed uses of registered content against
// the compliance terms of the work's license. The evaluator is a pure,
// deterministic, ordered rule set: the first failing rule decides the
// returned reason, every time, for identical input.
package license

import (
	"daon/internal/domain"
	"strings"
)

const EvaluatorVersion = "license-eval.v1"

// Rule is one typed compliance predicate. A nil result means the rule
// passes; a non-nil result denies with that rule's reason.
type Rule interface {
	ID() string
	// Applies gates the rule on entity/use type so unrelated groups are
	// never consulted.
	Applies(use domain.ProposedUse) bool
	Check(use domain.ProposedUse) *Violation
}

type Violation struct {
	RuleID string
	Reason string
}

type Evaluator struct {
	rules []Rule
}

// NewEvaluator builds the liberation_v1 rule set in contract order:
// prohibited-purpose rules, then corporate-entity rules, then
// AI/automation rules.
func NewEvaluator() *Evaluator {
	return &Evaluator{rules: liberationRules()}
}

// Evaluate is total for well-formed input and never mutates state.
// Permissive and informational licenses always allow; only the
// restrictive liberation family carries compliance rules.
func (e *Evaluator) Evaluate(license string, use domain.ProposedUse) domain.Evaluation {
	if license != domain.LicenseLiberationV1 {
		return domain.Evaluation{Allowed: true, Reason: "license imposes no use restrictions"}
	}

	// Worker-owned enterprises and individuals are the license's
	// beneficiaries; their ordinary uses pass without consulting the
	// corporate or AI groups.
	switch use.EntityType {
	case domain.EntityCooperative, domain.EntityWorkerOwned:
		return domain.Evaluation{Allowed: true, Reason: "worker-owned enterprise permitted"}
	case domain.EntityIndividual:
		if use.UseType != domain.UseAITraining && use.UseType != domain.UseAutomation {
			return domain.Evaluation{Allowed: true, Reason: "individual use permitted"}
		}
	}

	for _, rule := range e.rules {
		if !rule.Applies(use) {
			continue
		}
		if v := rule.Check(use); v != nil {
			return domain.Evaluation{Allowed: false, Reason: v.Reason, RuleID: v.RuleID}
		}
	}
	return domain.Evaluation{Allowed: true, Reason: "use compliant with liberation license"}
}

// metaTrue reports whether a boolean attestation is present and true.
func metaTrue(use domain.ProposedUse, key string) bool {
	return strings.EqualFold(use.Metadata[key], "true")
}
