package handler

import (
	"time"

	"docgate/internal/document/models"
	"docgate/internal/document/service"
	"docgate/internal/forensics"
	"docgate/internal/policy"
)

// DocumentResponse is the wire shape of a document.
type DocumentResponse struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	OwnerName        string          `json:"ownerName,omitempty"`
	OwnerEmail       string          `json:"ownerEmail,omitempty"`
	Type             string          `json:"type"`
	Status           string          `json:"status"`
	FileHash         string          `json:"fileHash"`
	BlockchainType   string          `json:"blockchainType"`
	BlockchainStatus string          `json:"blockchainStatus"`
	AttestationID    string          `json:"attestationId,omitempty"`
	NFTMintAddress   string          `json:"nftMintAddress,omitempty"`
	TransactionRef   string          `json:"transactionRef,omitempty"`
	IdentityHold     bool            `json:"identityHold,omitempty"`
	Report           *ReportResponse `json:"report,omitempty"`
	IssuedAt         *time.Time      `json:"issuedAt,omitempty"`
	ExpiresAt        *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// ReportResponse exposes the score breakdown and findings. The face feature
// vector is never serialised.
type ReportResponse struct {
	AnalysisID        string              `json:"analysisId"`
	OverallScore      int                 `json:"overallScore"`
	Breakdown         BreakdownResponse   `json:"breakdown"`
	TamperingDetected bool                `json:"tamperingDetected"`
	TamperRisk        string              `json:"tamperRisk"`
	HasFaceImage      bool                `json:"hasFaceImage"`
	Findings          []forensics.Finding `json:"findings"`
	RecommendedAction string              `json:"recommendedAction,omitempty"`
	AnalyzedAt        time.Time           `json:"analyzedAt"`
}

type BreakdownResponse struct {
	Integrity    int `json:"integrity"`
	Authenticity int `json:"authenticity"`
	Metadata     int `json:"metadata"`
	OCR          int `json:"ocr"`
	Biometric    int `json:"biometric"`
	Security     int `json:"security"`
}

// DecisionResponse is the policy outcome shown to callers.
type DecisionResponse struct {
	Disposition string `json:"disposition"`
	Reason      string `json:"reason"`
	UserMessage string `json:"userMessage"`
	Overridden  bool   `json:"overridden,omitempty"`
}

// StatusResponse is the body of GET /forensic-status/{documentId}.
type StatusResponse struct {
	DocumentID        string             `json:"documentId"`
	Status            string             `json:"status"`
	Decision          string             `json:"decision"`
	OverallScore      *int               `json:"overallScore"`
	UserMessage       string             `json:"userMessage"`
	BlockchainStatus  string             `json:"blockchainStatus"`
	Breakdown         *BreakdownResponse `json:"breakdown,omitempty"`
	TamperingDetected bool               `json:"tamperingDetected"`
	IdentityHold      bool               `json:"identityHold,omitempty"`
}

// FromDocument converts a domain document to its response.
func FromDocument(doc *models.Document) DocumentResponse {
	return DocumentResponse{
		ID:               doc.ID.String(),
		UserID:           doc.UserID.String(),
		OwnerName:        doc.OwnerName,
		OwnerEmail:       doc.OwnerEmail,
		Type:             string(doc.Type),
		Status:           string(doc.Status),
		FileHash:         doc.FileHash,
		BlockchainType:   string(doc.BlockchainType),
		BlockchainStatus: doc.BlockchainStatus(),
		AttestationID:    doc.AttestationID,
		NFTMintAddress:   doc.NFTMintAddress,
		TransactionRef:   doc.TransactionRef,
		IdentityHold:     doc.IdentityHold,
		Report:           FromReport(doc.Report),
		IssuedAt:         doc.IssuedAt,
		ExpiresAt:        doc.ExpiresAt,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

func FromReport(r *forensics.Report) *ReportResponse {
	if r == nil {
		return nil
	}
	findings := r.Findings
	if findings == nil {
		findings = []forensics.Finding{}
	}
	return &ReportResponse{
		AnalysisID:        r.AnalysisID.String(),
		OverallScore:      r.OverallScore,
		Breakdown:         fromScores(r.Scores),
		TamperingDetected: r.TamperingDetected,
		TamperRisk:        string(r.TamperRisk),
		HasFaceImage:      r.HasFaceImage,
		Findings:          findings,
		RecommendedAction: r.RecommendedAction,
		AnalyzedAt:        r.AnalyzedAt,
	}
}

func FromDecision(d policy.Decision) DecisionResponse {
	return DecisionResponse{
		Disposition: string(d.Disposition),
		Reason:      string(d.Reason),
		UserMessage: d.UserMessage,
		Overridden:  d.Overridden,
	}
}

func fromScores(s forensics.Scores) BreakdownResponse {
	return BreakdownResponse{
		Integrity:    s.Integrity,
		Authenticity: s.Authenticity,
		Metadata:     s.Metadata,
		OCR:          s.OCR,
		Biometric:    s.Biometric,
		Security:     s.Security,
	}
}

// FromStatus builds the status body from the resolved view.
func FromStatus(view *service.StatusView) StatusResponse {
	doc := view.Document
	resp := StatusResponse{
		DocumentID:       doc.ID.String(),
		Status:           string(doc.Status),
		Decision:         view.Decision,
		UserMessage:      view.UserMessage,
		BlockchainStatus: doc.BlockchainStatus(),
		IdentityHold:     doc.IdentityHold,
	}
	if doc.Report != nil {
		score := doc.Report.OverallScore
		breakdown := fromScores(doc.Report.Scores)
		resp.OverallScore = &score
		resp.Breakdown = &breakdown
		resp.TamperingDetected = doc.Report.TamperingDetected
	}
	return resp
}
