package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// NewTable returns a borderless, left-aligned table writing to w.
func NewTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
}

// PrintSummary writes the headline numbers and the top topics table.
func (s Summary) PrintSummary(w io.Writer) error {
	fmt.Fprintf(w, "App:           %s\n", s.AppID)
	fmt.Fprintf(w, "Target date:   %s\n", s.Target)
	fmt.Fprintf(w, "Date range:    %s to %s\n", s.Start, s.End)
	fmt.Fprintf(w, "Total topics:  %d\n", s.TotalTopics)
	fmt.Fprintf(w, "Total mentions: %d\n\n", s.TotalMentions)

	rows := make([][]string, len(s.Top))
	for i, r := range s.Top {
		rows[i] = []string{strconv.Itoa(i + 1), r.Topic, r.TopicID, strconv.Itoa(r.Total)}
	}

	table := NewTable(w)
	table.Header([]string{"#", "Topic", "ID", "Mentions"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	s := r.Summarize()
	var b strings.Builder

	fmt.Fprintf(&b, "# Trend report: %s\n\n", r.AppID)
	fmt.Fprintf(&b, "Window **%s** to **%s**, %d topics, %d mentions.\n\n", s.Start, s.End, s.TotalTopics, s.TotalMentions)

	b.WriteString("## Top topics\n\n")
	for i, row := range s.Top {
		fmt.Fprintf(&b, "%d. **%s** (`%s`): %d\n", i+1, row.Topic, row.TopicID, row.Total)
	}

	b.WriteString("\n## Daily counts\n\n| Topic |")
	for _, d := range r.Dates {
		fmt.Fprintf(&b, " %s |", d[5:])
	}
	b.WriteString(" Total |\n|---|")
	for range r.Dates {
		b.WriteString("---:|")
	}
	b.WriteString("---:|\n")

	for _, row := range r.Rows {
		fmt.Fprintf(&b, "| %s |", escapeCell(row.Topic))
		for _, n := range row.Counts {
			fmt.Fprintf(&b, " %d |", n)
		}
		fmt.Fprintf(&b, " %d |\n", row.Total)
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
