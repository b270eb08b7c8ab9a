package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rentguard/pkg/domain-errors"
)

func TestNewDateRange(t *testing.T) {
	tests := []struct {
		name    string
		in, out time.Time
		wantErr bool
	}{
		{name: "valid stay", in: day(10), out: day(12)},
		{name: "zero check-in", out: day(12), wantErr: true},
		{name: "same day", in: day(10), out: day(10), wantErr: true},
		{name: "reversed", in: day(12), out: day(10), wantErr: true},
		{name: "in the past", in: now.Add(-time.Hour), out: day(10), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewDateRange(tt.in, tt.out, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidDateRange), err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, time.UTC, r.CheckIn.Location())
		})
	}
}

func TestDateRangeOverlaps(t *testing.T) {
	base := DateRange{CheckIn: day(10), CheckOut: day(14)}
	tests := []struct {
		name  string
		other DateRange
		want  bool
	}{
		{"identical", base, true},
		{"inside", DateRange{day(11), day(12)}, true},
		{"straddles start", DateRange{day(8), day(11)}, true},
		{"straddles end", DateRange{day(13), day(16)}, true},
		{"back to back before", DateRange{day(8), day(10)}, false},
		{"back to back after", DateRange{day(14), day(16)}, false},
		{"disjoint", DateRange{day(20), day(22)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base))
		})
	}
}
