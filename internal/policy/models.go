package policy

// Disposition is the binding outcome of the decision policy.
type Disposition string

const (
	DispositionApproved Disposition = "APPROVED"
	DispositionReview   Disposition = "REVIEW"
	DispositionRejected Disposition = "REJECTED"
)

func (d Disposition) IsValid() bool {
	return d == DispositionApproved || d == DispositionReview || d == DispositionRejected
}

func (d Disposition) String() string {
	return string(d)
}

// Reason is the machine-readable rationale for a disposition.
type Reason string

const (
	ReasonScoreHigh      Reason = "score_above_approve_threshold"
	ReasonScoreMedium    Reason = "score_in_review_band"
	ReasonScoreLow       Reason = "score_below_review_threshold"
	ReasonTamperOverride Reason = "tamper_evidence_override"
)

// User-facing messages per disposition.
const (
	MessageApproved = "Your document was verified automatically and is being issued."
	MessageReview   = "Your document has been routed to a human reviewer."
	MessageRejected = "Your document could not be verified. Please resubmit a clearer copy."
	MessageTamper   = "Your document could not be verified because signs of alteration were detected."
)

// Decision is the output of Decide.
type Decision struct {
	Disposition Disposition
	Reason      Reason
	UserMessage string
	// Overridden is true when tamper evidence forced REJECTED over a passing score.
	Overridden bool
}
