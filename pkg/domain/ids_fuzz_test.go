//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseDocumentID tests that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
//
// Justification: document IDs arrive from URLs and batch payloads.
func FuzzParseDocumentID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE documents;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseDocumentID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Fatal("nil document ID accepted")
		}
		roundTrip, err := ParseDocumentID(id.String())
		if err != nil {
			t.Fatalf("valid ID failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Fatal("round-trip changed ID value")
		}
	})
}

func FuzzParseDocumentType(f *testing.F) {
	f.Add("PASSPORT")
	f.Add("passport")
	f.Add("")
	f.Add("LAND_TITLE\x00")

	f.Fuzz(func(t *testing.T, input string) {
		dt, err := ParseDocumentType(input)
		if err == nil && !dt.IsValid() {
			t.Fatalf("parsed invalid type %q", input)
		}
	})
}
