// Package export writes per-day batch documents and the taxonomy to the
// on-disk layout under the data directory.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
)

// Source is the stored data that can be exported.
type Source interface {
	GetDailyBatch(appID, date string) (*database.DailyBatch, error)
	GetDetailedBatch(appID, date string) (*database.DetailedBatch, error)
	GetTaxonomy(appID string) (*database.Taxonomy, error)
}

// Writer writes documents beneath a data directory.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer rooted at dataDir.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// ProcessedDir is where an app's batch documents live.
func (w *Writer) ProcessedDir(appID string) string {
	return filepath.Join(w.dataDir, "apps", appID, "processed")
}

// BatchPath returns the path of the daily batch document.
func (w *Writer) BatchPath(appID, date string) string {
	return filepath.Join(w.ProcessedDir(appID), fmt.Sprintf("batch_%s.json", date))
}

// DetailsPath returns the path of the detailed batch document.
func (w *Writer) DetailsPath(appID, date string) string {
	return filepath.Join(w.ProcessedDir(appID), fmt.Sprintf("details_%s.json", date))
}

// TaxonomyPath returns the path of the app's taxonomy document.
func (w *Writer) TaxonomyPath(appID string) string {
	return filepath.Join(w.dataDir, "apps", appID, "taxonomy", "master_taxonomy.json")
}

// WriteDay writes both documents for one day, replacing earlier ones.
func (w *Writer) WriteDay(daily *database.DailyBatch, detailed *database.DetailedBatch) error {
	if err := writeJSON(w.BatchPath(daily.AppID, daily.Date), daily); err != nil {
		return err
	}
	if detailed == nil {
		return nil
	}
	return writeJSON(w.DetailsPath(detailed.AppID, detailed.Date), detailed)
}

// WriteTaxonomy writes the app's taxonomy document.
func (w *Writer) WriteTaxonomy(tax *database.Taxonomy) error {
	return writeJSON(w.TaxonomyPath(tax.AppID), tax)
}

// Range exports every stored day in [start, end] plus the taxonomy and
// returns the number of days written. Days without a batch are skipped.
func (w *Writer) Range(src Source, appID, start, end string) (int, error) {
	from, err := dates.ParseDate(start)
	if err != nil {
		return 0, err
	}
	to, err := dates.ParseDate(end)
	if err != nil {
		return 0, err
	}
	days, err := dates.DatesInRange(from, to)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, d := range days {
		key := dates.FormatDate(d)
		daily, err := src.GetDailyBatch(appID, key)
		if err != nil {
			return written, err
		}
		if daily == nil {
			logging.Debugf("no batch for %s on %s, skipping", appID, key)
			continue
		}
		detailed, err := src.GetDetailedBatch(appID, key)
		if err != nil {
			return written, err
		}
		if err := w.WriteDay(daily, detailed); err != nil {
			return written, err
		}
		written++
	}

	tax, err := src.GetTaxonomy(appID)
	if err != nil {
		return written, err
	}
	if tax != nil {
		if err := w.WriteTaxonomy(tax); err != nil {
			return written, err
		}
	}
	return written, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
