package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// MinColumnWidth is the narrowest a table column is rendered.
const MinColumnWidth = 10

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as a borderless, left-aligned table. Each column is
// as wide as its longest cell, and never narrower than MinColumnWidth.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := tablewriter.NewWriter(w)
	headers := data.Headers()
	table.SetHeader(headers)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	for i := range headers {
		table.SetColMinWidth(i, MinColumnWidth)
	}

	table.AppendBulk(data.Rows())
	table.Render()
	return nil
}
