// Package domain holds the typed identifiers shared across bounded contexts.
//
// Identifiers are parsed once at the trust boundary (Parse*) and passed around
// as distinct types so a tenant id can never be handed to a property lookup.
package domain

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "rentguard/pkg/domain-errors"
)

const maxExternalIDLen = 128

// BookingID is assigned by the registry, monotonically, starting at 1.
type BookingID uint64

func (b BookingID) String() string { return strconv.FormatUint(uint64(b), 10) }

// IsZero reports whether the id has not been assigned yet.
func (b BookingID) IsZero() bool { return b == 0 }

type (
	TenantID   string
	PropertyID string
	HostID     string
)

func (t TenantID) String() string   { return string(t) }
func (p PropertyID) String() string { return string(p) }
func (h HostID) String() string     { return string(h) }

// ParseBookingID parses a decimal booking id. Zero is rejected.
func ParseBookingID(s string) (BookingID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "booking id is required")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid booking id")
	}
	if n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "booking id must be positive")
	}
	return BookingID(n), nil
}

func ParseTenantID(s string) (TenantID, error) {
	v, err := parseExternalID("tenant id", s)
	return TenantID(v), err
}

func ParsePropertyID(s string) (PropertyID, error) {
	v, err := parseExternalID("property id", s)
	return PropertyID(v), err
}

func ParseHostID(s string) (HostID, error) {
	v, err := parseExternalID("host id", s)
	return HostID(v), err
}

// parseExternalID accepts opaque ids issued elsewhere (wallet addresses,
// listing slugs). They must be printable, trimmed and bounded.
func parseExternalID(field, s string) (string, error) {
	if s == "" {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", field)
	}
	if len(s) > maxExternalIDLen {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s exceeds %d bytes", field, maxExternalIDLen)
	}
	if !utf8.ValidString(s) {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s is not valid utf-8", field)
	}
	if strings.TrimSpace(s) != s {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s has surrounding whitespace", field)
	}
	for _, r := range s {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s contains invalid characters", field)
		}
	}
	return s, nil
}
