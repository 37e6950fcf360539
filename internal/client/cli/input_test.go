package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFields(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{"until empty line", "sid=090001789012\n time_point = FU2 \n\nignored=1\n", map[string]string{"sid": "090001789012", "time_point": "FU2"}, false},
		{"until eof", "centre=PARIS", map[string]string{"centre": "PARIS"}, false},
		{"later wins", "sid=1\nsid=2\n\n", map[string]string{"sid": "2"}, false},
		{"empty value kept", "flags=\n\n", map[string]string{"flags": ""}, false},
		{"no equals", "sid\n\n", nil, true},
		{"no name", "=x\n\n", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := GetFields(bufio.NewReader(strings.NewReader(tt.input)), "Enter metadata", &out)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(out.String(), "Enter metadata\n"))
		})
	}
}

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"status=Quarantine", "limit=5", "centre="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "Quarantine", "limit": "5", "centre": ""}, got)

	_, err = parseKeyValues([]string{"Quarantine"})
	require.Error(t, err)
}
