package domain

import (
	"time"

	dErrors "docgate/pkg/domain-errors"
)

// DocumentType is the closed set of document kinds the gateway issues.
// Invariant: the value must be one of the supported types.
//
// Usage: construct via ParseDocumentType at trust boundaries; direct casting
// bypasses validation.
type DocumentType string

const (
	DocumentTypeNationalID       DocumentType = "NATIONAL_ID"
	DocumentTypePassport         DocumentType = "PASSPORT"
	DocumentTypeDriversLicense   DocumentType = "DRIVERS_LICENSE"
	DocumentTypeBirthCertificate DocumentType = "BIRTH_CERTIFICATE"
	DocumentTypeDiploma          DocumentType = "DIPLOMA"
	DocumentTypeBusinessPermit   DocumentType = "BUSINESS_PERMIT"
	DocumentTypeLandTitle        DocumentType = "LAND_TITLE"
)

type documentTypeTraits struct {
	facialBiometric bool
	blockchain      BlockchainType
	validity        time.Duration
}

const year = 365 * 24 * time.Hour

// documentTypes is the single source of truth for supported document types.
var documentTypes = map[DocumentType]documentTypeTraits{
	DocumentTypeNationalID:       {facialBiometric: true, blockchain: BlockchainSASAttestation, validity: 10 * year},
	DocumentTypePassport:         {facialBiometric: true, blockchain: BlockchainSASAttestation, validity: 10 * year},
	DocumentTypeDriversLicense:   {facialBiometric: true, blockchain: BlockchainSASAttestation, validity: 5 * year},
	DocumentTypeBirthCertificate: {blockchain: BlockchainSASAttestation},
	DocumentTypeDiploma:          {blockchain: BlockchainSASAttestation},
	DocumentTypeBusinessPermit:   {blockchain: BlockchainSASAttestation, validity: year},
	DocumentTypeLandTitle:        {blockchain: BlockchainNFTMetaplex},
}

// ParseDocumentType constructs a DocumentType from external input.
//
// Errors: CodeInvalidInput when the value is empty or unsupported.
func ParseDocumentType(s string) (DocumentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "document type cannot be empty")
	}
	t := DocumentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported document type")
	}
	return t, nil
}

func (t DocumentType) IsValid() bool {
	_, ok := documentTypes[t]
	return ok
}

// HasFacialBiometric reports whether documents of this type carry a face image
// that must pass biometric deduplication.
func (t DocumentType) HasFacialBiometric() bool {
	return documentTypes[t].facialBiometric
}

// BlockchainType returns the issuance backend for this document type.
// Identity documents become non-transferable attestations; ownership
// documents become transferable NFTs.
func (t DocumentType) BlockchainType() BlockchainType {
	return documentTypes[t].blockchain
}

// Validity returns how long an issued document stays VERIFIED before the
// expiry sweep moves it to EXPIRED. Zero means it never expires.
func (t DocumentType) Validity() time.Duration {
	return documentTypes[t].validity
}

func (t DocumentType) String() string {
	return string(t)
}

// BlockchainType selects the issuance backend.
type BlockchainType string

const (
	BlockchainSASAttestation BlockchainType = "SAS_ATTESTATION"
	BlockchainNFTMetaplex    BlockchainType = "NFT_METAPLEX"
)

func (b BlockchainType) String() string {
	return string(b)
}
