// Package forensics holds the typed forensic analysis result and the port to
// the external analysis collaborator.
package forensics

import (
	"context"
	"fmt"
	"time"

	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
)

// TamperRisk grades tamper evidence found by the analysis.
type TamperRisk string

const (
	TamperRiskNone     TamperRisk = "NONE"
	TamperRiskLow      TamperRisk = "LOW"
	TamperRiskMedium   TamperRisk = "MEDIUM"
	TamperRiskHigh     TamperRisk = "HIGH"
	TamperRiskCritical TamperRisk = "CRITICAL"
)

func (r TamperRisk) IsValid() bool {
	switch r {
	case TamperRiskNone, TamperRiskLow, TamperRiskMedium, TamperRiskHigh, TamperRiskCritical:
		return true
	}
	return false
}

// Scores is the per-category breakdown, each 0-100.
type Scores struct {
	Integrity    int `json:"integrity"`
	Authenticity int `json:"authenticity"`
	Metadata     int `json:"metadata"`
	OCR          int `json:"ocr"`
	Biometric    int `json:"biometric"`
	Security     int `json:"security"`
}

func (s Scores) asMap() map[string]int {
	return map[string]int{
		"integrity":    s.Integrity,
		"authenticity": s.Authenticity,
		"metadata":     s.Metadata,
		"ocr":          s.OCR,
		"biometric":    s.Biometric,
		"security":     s.Security,
	}
}

// Finding is a single observation reported by the analysis.
type Finding struct {
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Report is the immutable result of one analysis run. RecommendedAction is
// advisory and never drives the disposition.
type Report struct {
	DocumentID        id.DocumentID `json:"document_id"`
	AnalysisID        id.AnalysisID `json:"analysis_id"`
	OverallScore      int           `json:"overall_score"`
	Scores            Scores        `json:"scores"`
	TamperingDetected bool          `json:"tampering_detected"`
	TamperRisk        TamperRisk    `json:"tamper_risk"`
	HasFaceImage      bool          `json:"has_face_image"`
	FaceConfidence    float64       `json:"face_confidence"`
	// FaceFeatures is a facial-feature summary vector, used only to derive the
	// biometric hash.
	FaceFeatures      []float64 `json:"face_features,omitempty"`
	Findings          []Finding `json:"findings,omitempty"`
	RecommendedAction string    `json:"recommended_action,omitempty"`
	AnalyzedAt        time.Time `json:"analyzed_at"`
}

// Validate rejects reports with out-of-range values.
func (r *Report) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeAnalysisFailed, "analysis returned no report")
	}
	if r.OverallScore < 0 || r.OverallScore > 100 {
		return dErrors.New(dErrors.CodeAnalysisFailed, fmt.Sprintf("overall score %d out of range", r.OverallScore))
	}
	for name, v := range r.Scores.asMap() {
		if v < 0 || v > 100 {
			return dErrors.New(dErrors.CodeAnalysisFailed, fmt.Sprintf("%s score %d out of range", name, v))
		}
	}
	if !r.TamperRisk.IsValid() {
		return dErrors.New(dErrors.CodeAnalysisFailed, fmt.Sprintf("unknown tamper risk %q", r.TamperRisk))
	}
	if r.FaceConfidence < 0 || r.FaceConfidence > 1 {
		return dErrors.New(dErrors.CodeAnalysisFailed, "face confidence out of range")
	}
	return nil
}

// Clone returns a deep copy so cached or stored reports cannot be mutated by callers.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	c.FaceFeatures = append([]float64(nil), r.FaceFeatures...)
	c.Findings = append([]Finding(nil), r.Findings...)
	return &c
}

// AnalysisRequest is the input to the analysis collaborator.
type AnalysisRequest struct {
	DocumentID   id.DocumentID
	FileBytes    []byte
	MimeType     string
	DocumentType id.DocumentType
	Options      AnalysisOptions
}

type AnalysisOptions struct {
	// Locale hints the expected issuing country or language.
	Locale string
	// Detailed asks for per-finding descriptions.
	Detailed bool
}

// Analyzer produces a forensic report for an uploaded document.
// Failures are AnalysisFailed or Timeout coded errors.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*Report, error)
}
