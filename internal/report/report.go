// Package report builds the rolling topic trend matrix for an app from its
// daily batches.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
)

// TopN is the number of topics shown in summaries.
const TopN = 10

// Source is the stored data a report is built from.
type Source interface {
	GetDailyBatch(appID, date string) (*database.DailyBatch, error)
	GetTaxonomy(appID string) (*database.Taxonomy, error)
}

// Row is one topic's counts across the window.
type Row struct {
	TopicID string
	Topic   string
	Counts  []int
	Total   int
}

// Report is the topic-by-date matrix for one app and window.
type Report struct {
	AppID  string
	Target string
	Dates  []string
	Rows   []Row
}

// Builder assembles reports.
type Builder struct {
	src      Source
	lookback int
}

// NewBuilder creates a Builder for windows of lookbackDays before the target.
func NewBuilder(src Source, lookbackDays int) *Builder {
	return &Builder{src: src, lookback: lookbackDays}
}

// Build returns the trend matrix for the window ending at target. Dates
// without a batch contribute zeros. Returns nil when no batch exists in the
// window or no topic was ever counted.
func (b *Builder) Build(appID string, target time.Time) (*Report, error) {
	keys := dates.DateStrings(target, b.lookback)
	if len(keys) == 0 {
		return nil, fmt.Errorf("empty report window for %s", dates.FormatDate(target))
	}

	batches := make(map[string]*database.DailyBatch, len(keys))
	for _, d := range keys {
		batch, err := b.src.GetDailyBatch(appID, d)
		if err != nil {
			return nil, fmt.Errorf("loading batch %s: %w", d, err)
		}
		if batch == nil {
			logging.Debugf("no batch for %s on %s", appID, d)
			continue
		}
		batches[d] = batch
	}
	if len(batches) == 0 {
		logging.Warnf("no daily batches for %s between %s and %s", appID, keys[0], keys[len(keys)-1])
		return nil, nil
	}

	rowIndex := map[string]int{}
	var rows []Row
	for col, d := range keys {
		batch := batches[d]
		if batch == nil {
			continue
		}
		for id, n := range batch.TopicFrequencies {
			i, ok := rowIndex[id]
			if !ok {
				i = len(rows)
				rowIndex[id] = i
				rows = append(rows, Row{TopicID: id, Counts: make([]int, len(keys))})
			}
			rows[i].Counts[col] += n
			rows[i].Total += n
		}
	}
	if len(rows) == 0 {
		logging.Warnf("no topics counted for %s in window ending %s", appID, dates.FormatDate(target))
		return nil, nil
	}

	tax, err := b.src.GetTaxonomy(appID)
	if err != nil {
		return nil, fmt.Errorf("loading taxonomy: %w", err)
	}
	for i := range rows {
		rows[i].Topic = tax.NameFor(rows[i].TopicID)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].TopicID < rows[j].TopicID
	})

	return &Report{AppID: appID, Target: dates.FormatDate(target), Dates: keys, Rows: rows}, nil
}

// WriteCSV writes the matrix as topic_id,Topic,<dates...>,Total.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{"topic_id", "Topic"}, r.Dates...)
	header = append(header, "Total")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range r.Rows {
		rec := make([]string, 0, len(row.Counts)+3)
		rec = append(rec, row.TopicID, row.Topic)
		for _, n := range row.Counts {
			rec = append(rec, strconv.Itoa(n))
		}
		rec = append(rec, strconv.Itoa(row.Total))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// CSVPath returns where the report for appID and target is written.
func CSVPath(dataDir, appID, target string) string {
	return filepath.Join(dataDir, "output", appID, fmt.Sprintf("trend_report_%s.csv", target))
}

// SaveCSV writes the report under dataDir and returns the file path.
func (r *Report) SaveCSV(dataDir string) (string, error) {
	path := CSVPath(dataDir, r.AppID, r.Target)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := r.WriteCSV(f); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// Summary is the headline view of a report.
type Summary struct {
	AppID         string
	Target        string
	Start         string
	End           string
	TotalTopics   int
	TotalMentions int
	Top           []Row
}

// Summarize returns totals and the TopN topics.
func (r *Report) Summarize() Summary {
	s := Summary{
		AppID:       r.AppID,
		Target:      r.Target,
		Start:       r.Dates[0],
		End:         r.Dates[len(r.Dates)-1],
		TotalTopics: len(r.Rows),
	}
	for _, row := range r.Rows {
		s.TotalMentions += row.Total
	}
	s.Top = r.Rows[:min(TopN, len(r.Rows))]
	return s
}
