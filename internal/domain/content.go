package domain

import "time"

// ContentIdentity is the three-tier identity of a piece of content:
// byte-exact, whitespace/case-insensitive, and near-duplicate-tolerant.
type ContentIdentity struct {
	Exact      string `json:"exact"`
	Normalized string `json:"normalized"`
	Perceptual string `json:"perceptual"`
}

type ContentRecord struct {
	ContentHash     string
	NormalizedHash  string
	PerceptualHash  string
	Owner           string
	Creator         string
	License         string
	PreviousVersion string
	Platform        string
	Metadata        map[string]string
	TransferHistory []TransferEntry
	Anchor          *LedgerAnchor
	CreatedAt       time.Time
}

// TransferEntry is one append-only row of a record's transfer history.
type TransferEntry struct {
	ContentHash string
	FromOwner   string
	ToOwner     string
	At          time.Time
}

// LedgerAnchor is the external transaction reference attached to a record
// when the optional ledger collaborator answers. Absence never blocks
// anything.
type LedgerAnchor struct {
	TxReference string
	Height      int64
	AnchoredAt  time.Time
}

type MatchLevel string

const (
	MatchExact      MatchLevel = "exact"
	MatchNormalized MatchLevel = "normalized"
	MatchPerceptual MatchLevel = "perceptual"
)

// DetectionEvent is the audit row produced for every submission that
// matched an existing record at any tier. Append-only.
type DetectionEvent struct {
	ID            string
	SubmittedHash string
	MatchedLevel  MatchLevel
	MatchedRecord string
	CallerMeta    map[string]string
	DetectedAt    time.Time
}

// DuplicateMatch is the cascade's answer for one submission.
type DuplicateMatch struct {
	Level  MatchLevel
	Record ContentRecord
}
