package models

import (
	"fmt"
	"time"

	"docgate/internal/forensics"
	"docgate/internal/policy"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
)

// Status is the document lifecycle state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:  {StatusVerified, StatusRejected},
	StatusVerified: {StatusExpired},
}

// CanTransitionTo reports whether the state machine allows s -> to.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// MaxCommentLength bounds reviewer comments, in characters.
const MaxCommentLength = 1000

// IssuanceStatus tracks the on-chain issuance of a verified document.
type IssuanceStatus string

const (
	IssuanceNone    IssuanceStatus = "none"
	IssuancePending IssuanceStatus = "pending"
	IssuanceIssued  IssuanceStatus = "issued"
	IssuanceFailed  IssuanceStatus = "failed"
)

// Document is an uploaded government document and its verification state.
type Document struct {
	ID         id.DocumentID
	UserID     id.UserID
	OwnerName  string
	OwnerEmail string
	Type       id.DocumentType
	Status     Status
	FileHash   string
	MimeType   string
	ObjectKey  string

	BlockchainType id.BlockchainType
	// AttestationID and NFTMintAddress are set only once issued, and only the
	// one matching BlockchainType.
	AttestationID  string
	NFTMintAddress string
	TransactionRef string
	IssuanceStatus IssuanceStatus

	LastDisposition policy.Disposition
	// IdentityHold blocks the document after a biometric collision until
	// support resolves it.
	IdentityHold bool
	Report       *forensics.Report

	IssuedAt  *time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDocument creates a PENDING document.
func NewDocument(userID id.UserID, ownerName, ownerEmail string, docType id.DocumentType, fileHash, mimeType string, now time.Time) *Document {
	docID := id.NewDocumentID()
	return &Document{
		ID:             docID,
		UserID:         userID,
		OwnerName:      ownerName,
		OwnerEmail:     ownerEmail,
		Type:           docType,
		Status:         StatusPending,
		FileHash:       fileHash,
		MimeType:       mimeType,
		ObjectKey:      "documents/" + docID.String(),
		BlockchainType: docType.BlockchainType(),
		IssuanceStatus: IssuanceNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Report = d.Report.Clone()
	if d.IssuedAt != nil {
		t := *d.IssuedAt
		c.IssuedAt = &t
	}
	if d.ExpiresAt != nil {
		t := *d.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func (d *Document) transition(to Status, now time.Time) error {
	if !d.Status.CanTransitionTo(to) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("document is %s, cannot move to %s", d.Status, to)).
			WithDetail("current_status", string(d.Status)).
			WithDetail("document_id", d.ID.String())
	}
	d.Status = to
	d.UpdatedAt = now
	return nil
}

// Verify moves a PENDING document to VERIFIED and stamps the validity window.
// Types without a validity period never expire.
func (d *Document) Verify(now time.Time) error {
	if err := d.transition(StatusVerified, now); err != nil {
		return err
	}
	issued := now
	d.IssuedAt = &issued
	if validity := d.Type.Validity(); validity > 0 {
		expires := now.Add(validity)
		d.ExpiresAt = &expires
	}
	d.IdentityHold = false
	return nil
}

func (d *Document) Reject(now time.Time) error {
	return d.transition(StatusRejected, now)
}

// Expire moves a VERIFIED document past its validity to EXPIRED.
func (d *Document) Expire(now time.Time) error {
	if !d.IsExpiredAt(now) {
		return dErrors.New(dErrors.CodeInvalidTransition, "document has not reached its expiry date").
			WithDetail("current_status", string(d.Status))
	}
	return d.transition(StatusExpired, now)
}

// IsExpiredAt reports whether a VERIFIED document's validity ended at or before now.
func (d *Document) IsExpiredAt(now time.Time) bool {
	return d.Status == StatusVerified && d.ExpiresAt != nil && !d.ExpiresAt.After(now)
}

// IsIssued reports whether an on-chain reference has been recorded.
func (d *Document) IsIssued() bool {
	return d.AttestationID != "" || d.NFTMintAddress != ""
}

// RecordIssuance stores the on-chain reference for a VERIFIED document. A
// document is never issued twice.
func (d *Document) RecordIssuance(blockchain id.BlockchainType, referenceID, txRef string, now time.Time) error {
	if d.Status != StatusVerified {
		return dErrors.New(dErrors.CodeInvalidTransition, "only verified documents can be issued").
			WithDetail("current_status", string(d.Status))
	}
	if d.IsIssued() {
		return dErrors.New(dErrors.CodeConflict, "document already issued").
			WithDetail("document_id", d.ID.String())
	}
	if blockchain != d.BlockchainType {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("receipt for %s does not match document blockchain type %s", blockchain, d.BlockchainType))
	}
	if referenceID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "issuance reference is required")
	}
	switch blockchain {
	case id.BlockchainNFTMetaplex:
		d.NFTMintAddress = referenceID
	default:
		d.AttestationID = referenceID
	}
	d.TransactionRef = txRef
	d.IssuanceStatus = IssuanceIssued
	d.UpdatedAt = now
	return nil
}

// InReviewQueue reports whether the document awaits a maker decision.
func (d *Document) InReviewQueue() bool {
	return d.Status == StatusPending && d.LastDisposition == policy.DispositionReview && !d.IdentityHold
}

// BlockchainStatus summarises issuance for status responses.
func (d *Document) BlockchainStatus() string {
	switch {
	case d.IsIssued():
		return string(IssuanceIssued)
	case d.Status != StatusVerified:
		return "not_applicable"
	default:
		return string(d.IssuanceStatus)
	}
}
