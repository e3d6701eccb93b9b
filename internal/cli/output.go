package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var stdout io.Writer = os.Stdout

// Table renders data as a formatted table.
type Table struct {
	headers []string
	rows    [][]string
	writer  io.Writer
}

// NewTable creates a new table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{
		headers: headers,
		writer:  stdout,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cols ...string) {
	t.rows = append(t.rows, cols)
}

// Render writes the table.
func (t *Table) Render() {
	w := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(t.headers, "\t"))

	sep := make([]string, len(t.headers))
	for i, h := range t.headers {
		sep[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(sep, "\t"))

	for _, row := range t.rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	w.Flush()
}

// render prints data as JSON or YAML, or calls table for the table format.
func render(data interface{}, table func() *Table) error {
	switch getOutputFormat() {
	case "json":
		return printJSON(data)
	case "yaml":
		return printYAML(data)
	case "table", "":
		if table == nil {
			return printJSON(data)
		}
		table().Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", getOutputFormat())
	}
}

func printJSON(data interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printYAML(data interface{}) error {
	// Round trip through JSON so YAML keys follow the json tags
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

// markers reports whether status markers should be drawn.
func markers() bool {
	if noColor {
		return false
	}
	f, ok := stdout.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatSeverity returns a severity string with visual indicator.
func formatSeverity(severity string) string {
	if !markers() {
		return severity
	}
	switch strings.ToLower(severity) {
	case "critical":
		return "[!] CRITICAL"
	case "error", "high":
		return "[E] " + strings.ToUpper(severity)
	case "warning", "medium":
		return "[W] " + strings.ToUpper(severity)
	case "info", "low":
		return "[i] " + strings.ToUpper(severity)
	default:
		return severity
	}
}

// formatStatus returns a status string with visual indicator.
func formatStatus(status string) string {
	if !markers() {
		return status
	}
	switch strings.ToLower(status) {
	case "healthy", "resolved", "ok", "success", "improved":
		return "[+] " + status
	case "unhealthy", "critical", "failed", "degraded":
		return "[-] " + status
	case "open", "warning", "unknown":
		return "[*] " + status
	case "acknowledged":
		return "[~] " + status
	default:
		return status
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatBool(ok bool) string {
	if ok {
		return formatStatus("success")
	}
	return formatStatus("failed")
}
