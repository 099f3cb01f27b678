package domain

import (
	"github.com/google/uuid"

	dErrors "docgate/pkg/domain-errors"
)

// Typed identifiers. They share the uuid.UUID representation but are distinct
// types so a DocumentID can never be passed where a UserID is expected.
type (
	UserID     uuid.UUID
	DocumentID uuid.UUID
	AnalysisID uuid.UUID
)

func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id AnalysisID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AnalysisID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// SystemUserID is the actor recorded for automatic decisions and sweeps.
var SystemUserID = UserID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:docgate:actor:system")))

// NewDocumentID returns a random document identifier.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewAnalysisID returns a random analysis identifier.
func NewAnalysisID() AnalysisID { return AnalysisID(uuid.New()) }

// ParseUserID parses external input into a UserID.
//
// Errors: CodeInvalidInput when the value is empty, malformed or the nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseDocumentID parses external input into a DocumentID.
//
// Errors: CodeInvalidInput when the value is empty, malformed or the nil UUID.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document ID")
	return DocumentID(u), err
}

// ParseAnalysisID parses external input into an AnalysisID.
func ParseAnalysisID(s string) (AnalysisID, error) {
	u, err := parseUUID(s, "analysis ID")
	return AnalysisID(u), err
}

// maxIDLength bounds input before it reaches the parser.
const maxIDLength = 64

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// Text encoding renders the canonical UUID form so IDs embed cleanly in JSON
// payloads, report snapshots and cache entries.

func (id UserID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id DocumentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AnalysisID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DocumentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AnalysisID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
