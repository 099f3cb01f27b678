package biometric

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"
)

// quantisationSteps buckets each feature so small measurement noise between
// captures of the same face maps to the same hash.
const quantisationSteps = 20

// HashFeatures derives a keyed BLAKE2b-256 digest from a facial-feature
// summary vector. Returns "" for an empty vector.
func HashFeatures(key []byte, features []float64) (string, error) {
	if len(features) == 0 {
		return "", nil
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("init biometric hash: %w", err)
	}
	var buf [2]byte
	for _, f := range features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("biometric feature is not finite")
		}
		clamped := math.Max(0, math.Min(1, f))
		binary.BigEndian.PutUint16(buf[:], uint16(math.Round(clamped*quantisationSteps)))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
