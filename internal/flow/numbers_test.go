package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{name: "plain", input: "1500", want: 1500, ok: true},
		{name: "thousands separators", input: "1,500,000", want: 1500000, ok: true},
		{name: "decimal", input: "98.5", want: 98.5, ok: true},
		{name: "persian digits", input: "۱۲۳۴", want: 1234, ok: true},
		{name: "persian with separator", input: "۱٬۵۰۰", want: 1500, ok: true},
		{name: "persian decimal mark", input: "۹۸٫۵", want: 98.5, ok: true},
		{name: "surrounding spaces", input: "  250 ", want: 250, ok: true},
		{name: "zero", input: "0", ok: false},
		{name: "negative", input: "-5", ok: false},
		{name: "words", input: "plenty", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrBadNumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
