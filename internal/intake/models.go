package intake

import (
	"docgate/internal/document/models"
	"docgate/internal/forensics"
	"docgate/internal/issuance"
	"docgate/internal/policy"
	"docgate/pkg/requestcontext"
)

// SubmitRequest is an upload as received from the owner.
type SubmitRequest struct {
	Owner        requestcontext.Principal
	DocumentType string
	MimeType     string
	Data         []byte
	Options      forensics.AnalysisOptions
}

// Result is the state of a document after intake ran the pipeline on it.
type Result struct {
	Document *models.Document
	Decision policy.Decision
	// Cached is true when the report came from the forensic cache.
	Cached          bool
	Receipt         *issuance.Receipt
	IssuanceWarning string
}
