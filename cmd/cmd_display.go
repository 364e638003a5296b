// cmd_display.go - Tabellen- und JSON-Ausgabe
// Hauptfunktionen: renderTable, printJSON, yesNo
package cmd

import (
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
)

// renderTable - Gibt eine Tabelle ohne Rahmen mit linksbuendigem Header aus
func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()
}

// printJSON - Gibt v eingerueckt auf stdout aus
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// orDash - Leere Werte als "-" darstellen
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
