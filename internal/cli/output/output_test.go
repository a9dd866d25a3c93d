package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yaml", input: "yaml", want: FormatYAML},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  table  ", want: FormatTable},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, string(got), got.String())
		})
	}
}

type rows struct {
	headers []string
	data    [][]string
}

func (r rows) Headers() []string { return r.headers }
func (r rows) Rows() [][]string  { return r.data }

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	data := rows{
		headers: []string{"SESSION ID", "MOUNTPOINT", "STATUS"},
		data: [][]string{
			{"s1", "-", "stopped"},
			{"a-much-longer-session", "/run/a/mnt", "running"},
		},
	}
	require.NoError(t, PrintTable(&buf, data))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "SESSION ID", "headers keep their case")

	// Columns line up: the second column starts at the same offset everywhere.
	col := strings.Index(lines[0], "MOUNTPOINT")
	assert.Equal(t, col, strings.Index(lines[1], "-"))
	assert.Equal(t, col, strings.Index(lines[2], "/run/a/mnt"))
	assert.GreaterOrEqual(t, col, len("a-much-longer-session"))
}

func TestPrintTableMinimumWidth(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, rows{headers: []string{"A", "B"}, data: [][]string{{"x", "y"}}}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.GreaterOrEqual(t, strings.Index(lines[0], "B"), MinColumnWidth)
}

type item struct {
	ID     string `json:"id" yaml:"id"`
	Status string `json:"status" yaml:"status"`
}

func TestPrintStructured(t *testing.T) {
	items := []item{{ID: "s1", Status: "running"}}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatJSON, items))
		var got []item
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, items, got)
		assert.Contains(t, buf.String(), "\n  {")
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatYAML, items))
		var got []item
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, items, got)
	})

	t.Run("table needs a renderer", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, Print(&buf, FormatTable, items))
	})

	t.Run("unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, Print(&buf, Format("xml"), items))
	})
}
