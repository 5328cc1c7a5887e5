package domain

import "strings"

const (
	LicenseLiberationV1      = "liberation_v1"
	LicenseCCBy              = "cc_by"
	LicenseCCBySA            = "cc_by_sa"
	LicenseCCByNC            = "cc_by_nc"
	LicenseCCByNCSA          = "cc_by_nc_sa"
	LicenseAllRightsReserved = "all_rights_reserved"
	LicensePublicDomain      = "public_domain"

	CustomLicensePrefix   = "custom:"
	MaxCustomLicenseBytes = 1000
)

type EntityType string

const (
	EntityIndividual  EntityType = "individual"
	EntityCorporation EntityType = "corporation"
	EntityNonprofit   EntityType = "nonprofit"
	EntityCooperative EntityType = "cooperative"
	EntityWorkerOwned EntityType = "worker_owned"
)

type UseType string

const (
	UsePersonal   UseType = "personal"
	UseCommercial UseType = "commercial"
	UseAITraining UseType = "ai_training"
	UseAutomation UseType = "automation"
	UseEducation  UseType = "education"
	UseResearch   UseType = "research"
)

// ProposedUse describes an intended use of licensed content, evaluated
// against the license's compliance policy.
type ProposedUse struct {
	EntityType   EntityType        `json:"entity_type"`
	UseType      UseType           `json:"use_type"`
	Purpose      string            `json:"purpose"`
	Compensation bool              `json:"compensation"`
	OpenSource   bool              `json:"open_source"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ProposedBy   string            `json:"proposed_by,omitempty"`
}

// Evaluation is the evaluator's verdict. RuleID names the first rule that
// denied; identical input always yields an identical Evaluation.
type Evaluation struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	RuleID  string `json:"rule_id,omitempty"`
}

// ValidLicense reports whether id names a known license identifier or a
// size-capped custom license blob.
func ValidLicense(id string) bool {
	switch id {
	case LicenseLiberationV1, LicenseCCBy, LicenseCCBySA, LicenseCCByNC,
		LicenseCCByNCSA, LicenseAllRightsReserved, LicensePublicDomain:
		return true
	}
	if strings.HasPrefix(id, CustomLicensePrefix) {
		return len(id) <= len(CustomLicensePrefix)+MaxCustomLicenseBytes
	}
	return false
}
