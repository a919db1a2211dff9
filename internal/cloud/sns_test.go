package cloud

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateSubject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "BESS-001: Low SOC", "BESS-001: Low SOC"},
		{"ascii", strings.Repeat("a", 120), strings.Repeat("a", 100)},
		{"rune on boundary", strings.Repeat("a", 99) + "é", strings.Repeat("a", 99)},
		{"multibyte", strings.Repeat("電", 40), strings.Repeat("電", 33)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateSubject(tt.in, maxSubjectLen)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), maxSubjectLen)
		})
	}
}
