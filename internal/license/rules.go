package license

import "daon/internal/domain"

// Rule identifiers are stable codes surfaced in violation reports.
const (
	RuleCorporateExploitation  = "PROHIBITED_CORPORATE_EXPLOITATION"
	RuleSurveillanceCapitalism = "PROHIBITED_SURVEILLANCE_CAPITALISM"
	RuleAuthoritarianControl   = "PROHIBITED_AUTHORITARIAN_CONTROL"
	RuleManipulation           = "PROHIBITED_MANIPULATION"
	RuleSystemicSubjugation    = "PROHIBITED_SYSTEMIC_SUBJUGATION"
	RuleWealthConcentration    = "PROHIBITED_WEALTH_CONCENTRATION"
	RuleCorporatePurpose       = "CORPORATE_PURPOSE_RESTRICTED"
	RuleCorporateAlignment     = "CORPORATE_MISSION_ALIGNMENT"
	RuleAIAttestation          = "AI_ATTESTATION_MISSING"
	RuleAITrainingCompensation = "AI_TRAINING_COMPENSATION"
	RuleAITrainingPurpose      = "AI_TRAINING_PURPOSE"
)

// liberationRules is the liberation_v1 contract order. Appending a rule
// keeps earlier reasons stable; reordering breaks the determinism
// contract with callers.
func liberationRules() []Rule {
	return []Rule{
		prohibitedPurposeRule{
			id:     RuleCorporateExploitation,
			reason: "corporate exploitation: profit extraction without creator compensation",
			match: func(use domain.ProposedUse) bool {
				return use.EntityType == domain.EntityCorporation &&
					use.Purpose == "profit" && !use.Compensation
			},
		},
		prohibitedPurposeRule{
			id:     RuleSurveillanceCapitalism,
			reason: "surveillance capitalism: unauthorized data collection/monetization",
			match: func(use domain.ProposedUse) bool {
				return use.UseType == "surveillance" ||
					use.Purpose == "data_collection" || use.Purpose == "data_monetization"
			},
		},
		prohibitedPurposeRule{
			id:     RuleAuthoritarianControl,
			reason: "authoritarian control: use restricts human freedom",
			match: func(use domain.ProposedUse) bool {
				return use.Purpose == "control" || use.Purpose == "surveillance"
			},
		},
		prohibitedPurposeRule{
			id:     RuleManipulation,
			reason: "manipulation: psychological exploitation detected",
			match: func(use domain.ProposedUse) bool {
				return use.Purpose == "manipulation" || use.UseType == "advertising"
			},
		},
		prohibitedPurposeRule{
			id:     RuleSystemicSubjugation,
			reason: "systemic subjugation: discriminatory use prohibited",
			match: func(use domain.ProposedUse) bool {
				return use.Purpose == "discrimination"
			},
		},
		prohibitedPurposeRule{
			id:     RuleWealthConcentration,
			reason: "wealth concentration: use concentrates power at expense of many",
			match: func(use domain.ProposedUse) bool {
				return use.Purpose == "wealth_concentration"
			},
		},
		corporateRestrictionRule{},
		aiRequirementRule{},
	}
}

// prohibitedPurposeRule denies a use outright regardless of entity type.
type prohibitedPurposeRule struct {
	id     string
	reason string
	match  func(domain.ProposedUse) bool
}

func (r prohibitedPurposeRule) ID() string { return r.id }

func (r prohibitedPurposeRule) Applies(domain.ProposedUse) bool { return true }

func (r prohibitedPurposeRule) Check(use domain.ProposedUse) *Violation {
	if r.match(use) {
		return &Violation{RuleID: r.id, Reason: r.reason}
	}
	return nil
}

var prohibitedCorporatePurposes = map[string]bool{
	"profit_maximization":   true,
	"worker_exploitation":   true,
	"consumer_manipulation": true,
	"rent_seeking":          true,
	"financial_extraction":  true,
	"surveillance_systems":  true,
	"competitive_advantage": true,
}

var permittedCorporatePurposes = map[string]bool{
	"humanitarian_work":      true,
	"ecological_restoration": true,
	"community_empowerment":  true,
	"educational_liberation": true,
	"healthcare_access":      true,
	"housing_justice":        true,
	"food_security":          true,
}

// corporateRestrictionRule confines corporate use to the explicit
// humanitarian/ecological allow-list and requires the two mission
// confirmations in metadata.
type corporateRestrictionRule struct{}

func (corporateRestrictionRule) ID() string { return RuleCorporatePurpose }

func (corporateRestrictionRule) Applies(use domain.ProposedUse) bool {
	return use.EntityType == domain.EntityCorporation
}

func (corporateRestrictionRule) Check(use domain.ProposedUse) *Violation {
	if prohibitedCorporatePurposes[use.Purpose] {
		return &Violation{
			RuleID: RuleCorporatePurpose,
			Reason: "prohibited corporate use: " + use.Purpose,
		}
	}
	if !permittedCorporatePurposes[use.Purpose] {
		return &Violation{
			RuleID: RuleCorporatePurpose,
			Reason: "corporate use must align with humanitarian/ecological goals",
		}
	}
	if use.Metadata["mission_alignment"] != "humanitarian_ecological" {
		return &Violation{
			RuleID: RuleCorporateAlignment,
			Reason: "corporate mission must align with humanitarian/ecological goals",
		}
	}
	if use.Metadata["benefit_distribution"] != "serves_mission" {
		return &Violation{
			RuleID: RuleCorporateAlignment,
			Reason: "corporate profits must serve humanitarian mission, not private enrichment",
		}
	}
	return nil
}

// aiAttestations is the fixed check order for the five boolean
// attestations required of AI and automation uses.
var aiAttestations = []string{
	"human_agency",
	"transparency",
	"consent",
	"benefit_sharing",
	"privacy_protection",
}

// aiRequirementRule enforces the AI/automation attestations plus the
// ai_training-specific compensation and purpose restrictions.
type aiRequirementRule struct{}

func (aiRequirementRule) ID() string { return RuleAIAttestation }

func (aiRequirementRule) Applies(use domain.ProposedUse) bool {
	return use.UseType == domain.UseAITraining || use.UseType == domain.UseAutomation
}

func (aiRequirementRule) Check(use domain.ProposedUse) *Violation {
	for _, requirement := range aiAttestations {
		if !metaTrue(use, requirement) {
			return &Violation{
				RuleID: RuleAIAttestation,
				Reason: "AI use missing requirement: " + requirement,
			}
		}
	}
	if use.UseType != domain.UseAITraining {
		return nil
	}
	if use.EntityType == domain.EntityCorporation && !use.Compensation {
		return &Violation{
			RuleID: RuleAITrainingCompensation,
			Reason: "AI training for corporate profit requires creator compensation",
		}
	}
	if p := use.Metadata["training_purpose"]; p == "surveillance" || p == "manipulation" {
		return &Violation{
			RuleID: RuleAITrainingPurpose,
			Reason: "AI training for surveillance or manipulation prohibited",
		}
	}
	return nil
}
