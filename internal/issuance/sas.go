package issuance

import (
	"context"
	"fmt"
	"time"

	dErrors "docgate/pkg/domain-errors"
)

// SASSchema is the attestation schema registered for verified documents.
const SASSchema = "docgate.verified-document.v1"

// SASAttestor issues Solana Attestation Service attestations.
type SASAttestor struct {
	relay *RelayClient
}

func NewSASAttestor(relay *RelayClient) *SASAttestor {
	return &SASAttestor{relay: relay}
}

type attestationBody struct {
	Schema    string            `json:"schema"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

type attestationResponse struct {
	AttestationID string `json:"attestation_id"`
	Signature     string `json:"signature"`
}

func (a *SASAttestor) Issue(ctx context.Context, req Request) (Receipt, error) {
	att, ok := req.(Attestation)
	if !ok {
		return Receipt{}, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("attestor cannot issue %s", req.Kind()))
	}
	body := attestationBody{
		Schema:    SASSchema,
		Recipient: att.Recipient.String(),
		Data: map[string]string{
			"document_id":   att.DocumentID.String(),
			"document_type": att.DocumentType.String(),
			"file_hash":     att.FileHash,
			"issued_at":     att.IssuedAt.UTC().Format(time.RFC3339),
		},
		ExpiresAt: att.ExpiresAt,
	}
	var out attestationResponse
	if err := a.relay.post(ctx, "/v1/attestations", att.DocumentID.String(), body, &out); err != nil {
		return Receipt{}, err
	}
	if out.AttestationID == "" {
		return Receipt{}, dErrors.New(dErrors.CodeIssuanceFailed, "issuance relay returned no attestation id")
	}
	return Receipt{Kind: KindAttestation, ReferenceID: out.AttestationID, TransactionRef: out.Signature}, nil
}
