package strings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		fold     func(string) string
		expected []string
	}{
		{name: "nil", input: nil, expected: nil},
		{name: "only blanks", input: []string{" ", ""}, expected: []string{}},
		{
			name:     "trims and keeps first occurrence",
			input:    []string{" identity ", "escrow", "identity"},
			expected: []string{"identity", "escrow"},
		},
		{
			name:     "folds case before comparing",
			input:    []string{"0xABCD", "0xabcd", "Escrow"},
			fold:     strings.ToLower,
			expected: []string{"0xabcd", "escrow"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Dedupe(tt.input, tt.fold))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, SplitList("kafka-1:9092, kafka-2:9092,,kafka-1:9092", nil))
	assert.Empty(t, SplitList("", nil))
}
