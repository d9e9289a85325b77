package table

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"cyclesdojo/internal/logging"
)

// WriteCSV writes header and rows to path in a single step: the data goes to
// a temporary file in the same directory which is then renamed over path, so
// readers never observe a partial table.
func WriteCSV(path string, header []string, rows [][]string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err = w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err = w.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	logging.LoaderDebug("Wrote %s: %d rows", path, len(rows))
	return nil
}
