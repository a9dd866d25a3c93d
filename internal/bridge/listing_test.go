package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeListing(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{"empty", nil, `[]`},
		{"single", []string{"a.txt"}, `["a.txt"]`},
		{"quote and backslash", []string{`d"e`, `x\y`}, `["d\"e","x\\y"]`},
		{"unicode passes through", []string{"héllo"}, `["héllo"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeListing(tt.names))
		})
	}
}

func TestEncodeListingDecodes(t *testing.T) {
	names := []string{"a.txt", "b c", `d"e`}

	var decoded []string
	require.NoError(t, json.Unmarshal([]byte(EncodeListing(names)), &decoded))
	assert.Equal(t, names, decoded)
}

func TestEncodeListingControlCharacters(t *testing.T) {
	// Control characters are not escaped; the payload is not valid JSON.
	assert.False(t, json.Valid([]byte(EncodeListing([]string{"line\nbreak"}))))
}
