//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseBookingID checks that parsing never panics and that accepted ids
// round-trip through String.
func FuzzParseBookingID(f *testing.F) {
	f.Add("")
	f.Add("1")
	f.Add("18446744073709551615")
	f.Add("18446744073709551616")
	f.Add("-1")
	f.Add("'; DROP TABLE bookings;--")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseBookingID(input)
		if err != nil {
			return
		}
		if id.IsZero() {
			t.Fatal("accepted zero booking id")
		}
		again, err := ParseBookingID(id.String())
		if err != nil || again != id {
			t.Fatalf("round-trip failed for %q", input)
		}
	})
}

// FuzzParseTenantID checks that accepted ids are valid utf-8 and bounded.
func FuzzParseTenantID(f *testing.F) {
	f.Add("")
	f.Add("tenant-1")
	f.Add(" padded ")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseTenantID(input)
		if err != nil {
			return
		}
		if !utf8.ValidString(string(id)) {
			t.Error("accepted invalid utf-8")
		}
		if len(id) == 0 || len(id) > maxExternalIDLen {
			t.Errorf("accepted id of length %d", len(id))
		}
	})
}
