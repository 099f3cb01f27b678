package biometric

import (
	"time"

	id "docgate/pkg/domain"
)

// Identity binds a biometric hash to exactly one user.
// Invariant: BiometricHash is unique across users.
type Identity struct {
	UserID        id.UserID
	BiometricHash string
	Data          Data
	CreatedAt     time.Time
}

// Data is supporting detail kept alongside the hash. It never includes raw
// imagery or the feature vector itself.
type Data struct {
	FeatureCount     int
	FaceConfidence   float64
	SourceDocumentID id.DocumentID
}

// SaveOutcome reports what Store.Save did with an identity.
type SaveOutcome int

const (
	// SaveStored means the identity was written.
	SaveStored SaveOutcome = iota
	// SaveUnchanged means the user already held this hash.
	SaveUnchanged
	// SaveUserMismatch means the user already holds a different hash. The
	// existing identity is kept and nothing is written.
	SaveUserMismatch
)

func (o SaveOutcome) String() string {
	switch o {
	case SaveStored:
		return "stored"
	case SaveUnchanged:
		return "unchanged"
	case SaveUserMismatch:
		return "user_mismatch"
	default:
		return "unknown"
	}
}

// Result is the outcome of a duplicate check.
type Result struct {
	IsDuplicate   bool
	ExistingOwner id.UserID
}

// ScreenResult describes what Screen did for a document.
type ScreenResult struct {
	// Skipped is true when the document type or report carries no face.
	Skipped bool
	Hash    string
	Stored  bool
	// Mismatch is true when the user already holds a different hash; the
	// earlier identity stays bound.
	Mismatch bool
}
