package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "docgate/pkg/domain-errors"
)

func TestParseDocumentType(t *testing.T) {
	dt, err := ParseDocumentType("PASSPORT")
	require.NoError(t, err)
	assert.Equal(t, DocumentTypePassport, dt)

	for _, bad := range []string{"", "passport", "VISA"} {
		_, err := ParseDocumentType(bad)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}

// Justification: biometric screening and the issuance backend both key off
// these traits; a wrong entry silently skips deduplication.
func TestDocumentTypeTraits(t *testing.T) {
	tests := []struct {
		dt         DocumentType
		biometric  bool
		blockchain BlockchainType
	}{
		{DocumentTypeNationalID, true, BlockchainSASAttestation},
		{DocumentTypePassport, true, BlockchainSASAttestation},
		{DocumentTypeDriversLicense, true, BlockchainSASAttestation},
		{DocumentTypeBirthCertificate, false, BlockchainSASAttestation},
		{DocumentTypeDiploma, false, BlockchainSASAttestation},
		{DocumentTypeBusinessPermit, false, BlockchainSASAttestation},
		{DocumentTypeLandTitle, false, BlockchainNFTMetaplex},
	}
	for _, tt := range tests {
		t.Run(tt.dt.String(), func(t *testing.T) {
			assert.Equal(t, tt.biometric, tt.dt.HasFacialBiometric())
			assert.Equal(t, tt.blockchain, tt.dt.BlockchainType())
		})
	}
}

func TestDocumentTypeValidity(t *testing.T) {
	assert.Zero(t, DocumentTypeLandTitle.Validity(), "land titles never expire")
	assert.Greater(t, DocumentTypePassport.Validity(), DocumentTypeBusinessPermit.Validity())
}
