// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders run results: the brand's visibility against its
// competitors and the run listing. Tables are drawn with go-pretty; JSON and
// YAML carry the same data for scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/visibility-engine/internal/checkpoint"
	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// Output formats.
const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Row is one brand's visibility.
type Row struct {
	Name     string `json:"name" yaml:"name"`
	Brand    bool   `json:"brand" yaml:"brand"`
	Mentions int    `json:"mentions" yaml:"mentions"`

	// Share is Mentions over the number of responses, in [0, 1].
	Share float64 `json:"share" yaml:"share"`
}

// Result summarizes one run.
type Result struct {
	RunID        string                `json:"run_id" yaml:"run_id"`
	Company      string                `json:"company" yaml:"company"`
	Status       string                `json:"status" yaml:"status"`
	Cursor       string                `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	Perspectives int                   `json:"perspectives" yaml:"perspectives"`
	Prompts      int                   `json:"prompts" yaml:"prompts"`
	Responses    int                   `json:"responses" yaml:"responses"`
	Visibility   []Row                 `json:"visibility" yaml:"visibility"`
	Failures     []types.BranchFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// FromState builds the Result of a run. The brand comes first, followed by
// competitors by descending mentions.
func FromState(status, cursor string, st *state.State) Result {
	r := Result{
		RunID:        st.RunID,
		Company:      st.BrandInfo.CompanyName,
		Status:       status,
		Cursor:       cursor,
		Perspectives: len(st.Perspectives),
		Prompts:      len(st.Prompts),
		Responses:    len(st.Responses),
		Failures:     st.Failures,
	}

	r.Visibility = append(r.Visibility, Row{
		Name:     st.BrandInfo.CompanyName,
		Brand:    true,
		Mentions: st.BrandMentions,
		Share:    share(st.BrandMentions, r.Responses),
	})
	comps := make([]Row, 0, len(st.Competitors))
	for _, c := range st.Competitors {
		comps = append(comps, Row{Name: c.Name, Mentions: c.Mentions, Share: share(c.Mentions, r.Responses)})
	}
	sort.SliceStable(comps, func(i, j int) bool { return comps[i].Mentions > comps[j].Mentions })
	r.Visibility = append(r.Visibility, comps...)
	return r
}

// FromCheckpoint builds the Result of a run's latest checkpoint.
func FromCheckpoint(cp checkpoint.Checkpoint) Result {
	st := cp.State
	if st == nil {
		st = &state.State{RunID: cp.RunID}
	}
	return FromState(string(cp.Status), cp.Cursor, st)
}

func share(mentions, responses int) float64 {
	if responses == 0 {
		return 0
	}
	return float64(mentions) / float64(responses)
}

// Write renders r to w.
func Write(w io.Writer, r Result, format string) error {
	switch format {
	case FormatTable, FormatMarkdown, "":
		t := newTable(format)
		t.SetTitle(fmt.Sprintf("%s  run %s  %s", r.Company, r.RunID, r.Status))
		t.AppendHeader(table.Row{"Name", "Role", "Mentions", "Share"})
		for _, row := range r.Visibility {
			role := "competitor"
			if row.Brand {
				role = "brand"
			}
			t.AppendRow(table.Row{row.Name, role, row.Mentions, fmt.Sprintf("%.1f%%", row.Share*100)})
		}
		t.AppendFooter(table.Row{"Responses", "", r.Responses, ""})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
		})
		if err := render(w, t, format); err != nil {
			return err
		}
		for _, f := range r.Failures {
			if _, err := fmt.Fprintf(w, "branch failure: %s[%d] %s: %s\n", f.Node, f.Index, f.Worker, f.Error); err != nil {
				return err
			}
		}
		return nil
	default:
		return encode(w, r, format)
	}
}

// WriteRuns renders a run listing to w.
func WriteRuns(w io.Writer, runs []checkpoint.Summary, format string) error {
	switch format {
	case FormatTable, FormatMarkdown, "":
		t := newTable(format)
		t.AppendHeader(table.Row{"Run", "Company", "Status", "Cursor", "Last Stage", "Seq", "Updated"})
		for _, s := range runs {
			cursor := s.Cursor
			if cursor == "" {
				cursor = "-"
			}
			t.AppendRow(table.Row{s.RunID, s.Company, s.Status, cursor, s.LastNode, s.Seq, s.UpdatedAt.Local().Format(time.DateTime)})
		}
		return render(w, t, format)
	default:
		if runs == nil {
			runs = []checkpoint.Summary{}
		}
		return encode(w, runs, format)
	}
}

func newTable(format string) table.Writer {
	t := table.NewWriter()
	if format != FormatMarkdown {
		t.SetStyle(table.StyleLight)
	}
	return t
}

func render(w io.Writer, t table.Writer, format string) error {
	out := t.Render()
	if format == FormatMarkdown {
		out = t.RenderMarkdown()
	}
	_, err := fmt.Fprintln(w, out)
	return err
}

func encode(w io.Writer, v any, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
