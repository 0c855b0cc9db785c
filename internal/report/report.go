// Package report renders reconciliation results for an operator.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/fikin/nodemcu-device/internal/ota"
	"github.com/fikin/nodemcu-device/internal/reconcile"
	"github.com/fikin/nodemcu-device/internal/release"
)

// Format selects a renderer
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// none is shown for a digest missing on one side
const none = "None"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")).Padding(0, 1) // magenta
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	diffStyle   = cellStyle.Bold(true)
	nameStyle   = diffStyle.Foreground(lipgloss.Color("9")) // red
	mutedStyle  = cellStyle.Foreground(lipgloss.Color("8")) // gray
)

// New returns the reporter for format
func New(format Format, w io.Writer, localLabel, remoteLabel string) (ota.Reporter, error) {
	switch format {
	case FormatTable, "":
		return NewTable(w, localLabel, remoteLabel), nil
	case FormatJSON:
		return NewJSON(w), nil
	default:
		return nil, fmt.Errorf("unknown report format: %s", format)
	}
}

// Table renders the diff as a bordered table with one row per file
type Table struct {
	w           io.Writer
	localLabel  string
	remoteLabel string
}

// NewTable creates a table reporter. The labels caption the digest columns,
// typically the local directory and the device host.
func NewTable(w io.Writer, localLabel, remoteLabel string) *Table {
	return &Table{w: w, localLabel: localLabel, remoteLabel: remoteLabel}
}

// Report implements ota.Reporter
func (t *Table) Report(_, _ *release.Index, diff *reconcile.Result) error {
	rows := make([][]string, 0, len(diff.Entries))
	for _, e := range diff.Entries {
		rows = append(rows, []string{e.Name, digestOrNone(e.Local, e.HasLocal), digestOrNone(e.Remote, e.HasRemote), string(e.Status)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("File", "Local repo\n"+t.localLabel, "Remote host\n"+t.remoteLabel, "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(diff.Entries) {
				return cellStyle
			}
			e := diff.Entries[row]
			switch {
			case !e.Differs():
				return cellStyle
			case e.Status == reconcile.StatusExcluded || e.Status == reconcile.StatusOrphan:
				return mutedStyle
			case col == 0:
				return nameStyle
			default:
				return diffStyle
			}
		})

	_, err := fmt.Fprintf(t.w, "%s\n%s\n%s\n", titleStyle.Render("Sw release"), tbl.Render(), summary(diff))
	return err
}

func summary(diff *reconcile.Result) string {
	counts := diff.Counts()
	return fmt.Sprintf("%d to upload, %d matching, %d excluded, %d only on device",
		len(diff.Upload), counts[reconcile.StatusMatch], len(diff.Excluded), len(diff.Orphans))
}

func digestOrNone(d string, ok bool) string {
	if !ok {
		return none
	}
	return d
}

// JSON renders the diff as a single JSON document
type JSON struct {
	w io.Writer
}

// NewJSON creates a JSON reporter
func NewJSON(w io.Writer) *JSON {
	return &JSON{w: w}
}

type jsonEntry struct {
	Name   string  `json:"name"`
	Local  *string `json:"local"`
	Remote *string `json:"remote"`
	Status string  `json:"status"`
}

type jsonReport struct {
	Entries        []jsonEntry `json:"entries"`
	Upload         []string    `json:"upload"`
	Excluded       []string    `json:"excluded"`
	Orphans        []string    `json:"orphans"`
	ReleaseChanged bool        `json:"release_changed"`
}

// Report implements ota.Reporter
func (j *JSON) Report(_, _ *release.Index, diff *reconcile.Result) error {
	out := jsonReport{
		Entries:        make([]jsonEntry, 0, len(diff.Entries)),
		Upload:         diff.Upload,
		Excluded:       diff.Excluded,
		Orphans:        diff.Orphans,
		ReleaseChanged: diff.ReleaseChanged,
	}
	for _, e := range diff.Entries {
		je := jsonEntry{Name: e.Name, Status: string(e.Status)}
		if e.HasLocal {
			local := e.Local
			je.Local = &local
		}
		if e.HasRemote {
			remote := e.Remote
			je.Remote = &remote
		}
		out.Entries = append(out.Entries, je)
	}

	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
