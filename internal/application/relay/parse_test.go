package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBPM(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "72", want: 72},
		{in: " 72\n", want: 72},
		{in: "+60", want: 60},
		{in: "-5", want: -5},
		{in: "007", want: 7},
		{in: "2147483647", want: 2147483647},
		{in: "2147483648", wantErr: true},
		{in: "", wantErr: true},
		{in: "not-a-number", wantErr: true},
		{in: "72.5", wantErr: true},
		{in: "0x48", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseBPM(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			assert.Zero(t, got, "input %q", tt.in)
			continue
		}
		assert.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestFormatBPM(t *testing.T) {
	assert.Equal(t, "88", FormatBPM(88))
	assert.Equal(t, "0", FormatBPM(0))
	assert.Equal(t, "-3", FormatBPM(-3))
}
