package domain

import "time"

// VerificationCheck is a single check within a verification run.
type VerificationCheck struct {
	// CheckName identifies the check family (e.g. "CommitmentMatch").
	CheckName string `json:"checkName"`
	Passed    bool   `json:"passed"`
	// Detail explains a failure; empty on pass.
	Detail string `json:"detail,omitempty"`
}

// VerificationResult is the structured outcome of one verification run.
// Every check that ran is reported, pass or fail, so a caller gets full
// diagnostic detail in one pass.
type VerificationResult struct {
	IsValid        bool                `json:"isValid"`
	VerificationID string              `json:"verificationId"`
	ArtifactID     string              `json:"artifactId"`
	VerifiedAt     time.Time           `json:"verifiedAt"`
	Checks         []VerificationCheck `json:"checks"`
	// FailureReasons holds stable reason codes, at most one per failed
	// check family, in check order.
	FailureReasons []string `json:"failureReasons"`
}
