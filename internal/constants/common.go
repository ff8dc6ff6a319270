package constants

// Common string constants used throughout the codebase
const (
	// Stages
	StageProd  = "prod"
	StageDev   = "dev"
	StageLocal = "local"

	// Trade actions
	BuyAction  = "buy"
	SellAction = "sell"
	HoldAction = "hold"

	// Execution record statuses
	SuccessStatus          = "success"
	FailedStatus           = "failed"
	PendingStatus          = "pending"
	SkippedStatus          = "skipped"
	SecurityRejectedStatus = "rejected_security"

	// Delegation statuses
	DelegationActive  = "active"
	DelegationRevoked = "revoked"

	// Submission modes
	DirectSubmission    = "direct"
	SponsoredSubmission = "sponsored"
)

// IsValidStage reports whether stage names a known deployment stage.
func IsValidStage(stage string) bool {
	switch stage {
	case StageProd, StageDev, StageLocal:
		return true
	}
	return false
}
