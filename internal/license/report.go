package license

import (
	"time"

	"daon/internal/domain"
)

// ViolationReport is the detailed artifact generated for a denied use,
// suitable for handing to the creator or their representative.
type ViolationReport struct {
	ContentHash     string             `json:"content_hash"`
	Creator         string             `json:"creator"`
	LicenseVersion  string             `json:"license_version"`
	ViolationType   domain.UseType     `json:"violation_type"`
	ViolatingEntity string             `json:"violating_entity,omitempty"`
	RuleID          string             `json:"rule_id"`
	Reason          string             `json:"reason"`
	GeneratedAt     time.Time          `json:"generated_at"`
	Remedies        []string           `json:"remedies"`
	ProposedUse     domain.ProposedUse `json:"proposed_use"`
}

// BuildViolationReport assembles the report for a denied evaluation.
// Callers pass the record the use was proposed against and the denial.
func BuildViolationReport(record domain.ContentRecord, use domain.ProposedUse, eval domain.Evaluation, now time.Time) ViolationReport {
	return ViolationReport{
		ContentHash:     record.ContentHash,
		Creator:         record.Creator,
		LicenseVersion:  record.License,
		ViolationType:   use.UseType,
		ViolatingEntity: use.ProposedBy,
		RuleID:          eval.RuleID,
		Reason:          eval.Reason,
		GeneratedAt:     now.UTC(),
		Remedies:        suggestRemedies(use),
		ProposedUse:     use,
	}
}

func suggestRemedies(use domain.ProposedUse) []string {
	remedies := []string{
		"Cease and desist letter citing license violation",
		"DMCA takedown notice for unauthorized use",
		"Federal court filing under Copyright Act",
	}
	if use.UseType == domain.UseAITraining {
		remedies = append(remedies,
			"AI training dataset removal request",
			"Commercial licensing negotiation for fair compensation",
		)
	}
	return remedies
}
