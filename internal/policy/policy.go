// Package policy maps a forensic report to a binding disposition.
//
// This is pure domain logic - no I/O, no side effects. The report's
// RecommendedAction is never consulted for the outcome.
package policy

import (
	"docgate/internal/forensics"
)

const (
	DefaultApproveThreshold = 85
	DefaultReviewThreshold  = 70
)

// Policy holds the score bands and the tamper override. The zero value is not
// usable; construct with Default or New.
type Policy struct {
	ApproveThreshold int
	ReviewThreshold  int
	// TamperOverride forces REJECTED when tampering is detected at one of
	// OverrideRisks, regardless of score.
	TamperOverride bool
	OverrideRisks  map[forensics.TamperRisk]bool
}

// Default returns the documented policy: >=85 approve, 70-84 review,
// <70 reject, with the HIGH/CRITICAL tamper override on.
func Default() Policy {
	return New(DefaultApproveThreshold, DefaultReviewThreshold, true)
}

// New builds a policy with the standard override risk set.
func New(approveThreshold, reviewThreshold int, tamperOverride bool) Policy {
	return Policy{
		ApproveThreshold: approveThreshold,
		ReviewThreshold:  reviewThreshold,
		TamperOverride:   tamperOverride,
		OverrideRisks: map[forensics.TamperRisk]bool{
			forensics.TamperRiskHigh:     true,
			forensics.TamperRiskCritical: true,
		},
	}
}

// Decide applies the default policy.
func Decide(report *forensics.Report) Decision {
	return Default().Decide(report)
}

// Decide evaluates the rule chain in fixed order:
//  1. Tamper override (hard fail)
//  2. Score >= ApproveThreshold -> APPROVED
//  3. Score >= ReviewThreshold -> REVIEW
//  4. Otherwise -> REJECTED
func (p Policy) Decide(report *forensics.Report) Decision {
	if report == nil {
		return Decision{Disposition: DispositionRejected, Reason: ReasonScoreLow, UserMessage: MessageRejected}
	}

	if p.tamperForcesRejection(report) {
		return Decision{
			Disposition: DispositionRejected,
			Reason:      ReasonTamperOverride,
			UserMessage: MessageTamper,
			Overridden:  report.OverallScore >= p.ReviewThreshold,
		}
	}

	switch {
	case report.OverallScore >= p.ApproveThreshold:
		return Decision{Disposition: DispositionApproved, Reason: ReasonScoreHigh, UserMessage: MessageApproved}
	case report.OverallScore >= p.ReviewThreshold:
		return Decision{Disposition: DispositionReview, Reason: ReasonScoreMedium, UserMessage: MessageReview}
	default:
		return Decision{Disposition: DispositionRejected, Reason: ReasonScoreLow, UserMessage: MessageRejected}
	}
}

func (p Policy) tamperForcesRejection(report *forensics.Report) bool {
	return p.TamperOverride && report.TamperingDetected && p.OverrideRisks[report.TamperRisk]
}

// AdvisoryAgrees reports whether the analysis collaborator's advisory action
// matches the computed disposition. Used only for observability.
func AdvisoryAgrees(report *forensics.Report, d Decision) bool {
	if report == nil || report.RecommendedAction == "" {
		return true
	}
	switch report.RecommendedAction {
	case "APPROVE", "APPROVED":
		return d.Disposition == DispositionApproved
	case "REVIEW":
		return d.Disposition == DispositionReview
	case "REJECT", "REJECTED":
		return d.Disposition == DispositionRejected
	}
	return false
}
