// Package export writes extraction results to flat files for hand-off to
// downstream teams.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

var csvHeader = []string{
	"job_id",
	"success",
	"cadastral_number",
	"owner_name",
	"buyer_name",
	"street",
	"number",
	"complement",
	"district",
	"postal_code",
	"error",
}

// WriteCSV streams outcomes as CSV rows, header first.
func WriteCSV(w io.Writer, outcomes []scraper.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, o := range outcomes {
		if err := cw.Write(row(o)); err != nil {
			return fmt.Errorf("write csv row for job %s: %w", o.JobID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteCSVFile writes outcomes to path, truncating any existing file.
func WriteCSVFile(path string, outcomes []scraper.Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, outcomes); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// DefaultFilename returns a timestamped path under dir for a run export.
func DefaultFilename(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("registry_scraped_%s.csv", now.Format("20060102_150405")))
}

func row(o scraper.Outcome) []string {
	rec := scraper.Record{}
	if o.Record != nil {
		rec = *o.Record
	}
	return []string{
		o.JobID,
		fmt.Sprintf("%t", o.Success),
		rec.CadastralNumber,
		rec.OwnerName,
		rec.BuyerName,
		rec.Street,
		rec.Number,
		rec.Complement,
		rec.District,
		rec.PostalCode,
		o.Err,
	}
}
