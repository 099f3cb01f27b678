// Package issuance hands verified documents to the on-chain issuance relay.
// Transactions are built and signed by the relay; this package only describes
// what to issue and records the receipt.
package issuance

import (
	"encoding/json"
	"fmt"
	"time"

	id "docgate/pkg/domain"
)

// Kind names a Request variant.
type Kind string

const (
	KindAttestation Kind = "attestation"
	KindNFTMint     Kind = "nft_mint"
)

// Request is either an Attestation or an NFTMint.
type Request interface {
	Kind() Kind
	Document() id.DocumentID
	sealed()
}

// Subject is what issuance needs to know about a verified document.
type Subject struct {
	DocumentID   id.DocumentID
	OwnerID      id.UserID
	OwnerName    string
	DocumentType id.DocumentType
	FileHash     string
	IssuedAt     time.Time
	ExpiresAt    *time.Time
}

// Attestation asks the relay for a SAS attestation.
type Attestation struct {
	DocumentID   id.DocumentID   `json:"document_id"`
	Recipient    id.UserID       `json:"recipient"`
	DocumentType id.DocumentType `json:"document_type"`
	FileHash     string          `json:"file_hash"`
	IssuedAt     time.Time       `json:"issued_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

func (Attestation) Kind() Kind                { return KindAttestation }
func (a Attestation) Document() id.DocumentID { return a.DocumentID }
func (Attestation) sealed()                   {}

// NFTMint asks the relay to mint a Metaplex NFT.
type NFTMint struct {
	DocumentID   id.DocumentID   `json:"document_id"`
	Owner        id.UserID       `json:"owner"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	DocumentType id.DocumentType `json:"document_type"`
	FileHash     string          `json:"file_hash"`
	IssuedAt     time.Time       `json:"issued_at"`
}

func (NFTMint) Kind() Kind                { return KindNFTMint }
func (n NFTMint) Document() id.DocumentID { return n.DocumentID }
func (NFTMint) sealed()                   {}

const nftSymbol = "DOCG"

// NewRequest picks the variant matching the document type's blockchain type.
func NewRequest(s Subject) Request {
	if s.DocumentType.BlockchainType() == id.BlockchainNFTMetaplex {
		name := s.DocumentType.String()
		if s.OwnerName != "" {
			name = s.OwnerName + " " + name
		}
		return NFTMint{
			DocumentID:   s.DocumentID,
			Owner:        s.OwnerID,
			Name:         name,
			Symbol:       nftSymbol,
			DocumentType: s.DocumentType,
			FileHash:     s.FileHash,
			IssuedAt:     s.IssuedAt,
		}
	}
	return Attestation{
		DocumentID:   s.DocumentID,
		Recipient:    s.OwnerID,
		DocumentType: s.DocumentType,
		FileHash:     s.FileHash,
		IssuedAt:     s.IssuedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

// Receipt is the relay's proof of issuance. ReferenceID is the attestation id
// or the mint address depending on Kind.
type Receipt struct {
	Kind           Kind
	ReferenceID    string
	TransactionRef string
}

// Encode serialises a request for the pending issuance store.
func Encode(req Request) ([]byte, error) {
	return json.Marshal(req)
}

// Decode restores a request encoded by Encode.
func Decode(kind Kind, data []byte) (Request, error) {
	switch kind {
	case KindAttestation:
		var a Attestation
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode attestation request: %w", err)
		}
		return a, nil
	case KindNFTMint:
		var n NFTMint
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("decode nft mint request: %w", err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown issuance kind %q", kind)
	}
}
