package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

var csvHeader = []string{"ID", "Name", "Due Date", "Priority", "Category", "Completed", "Recurrence"}

// ExportCSV writes every live task to path, overwriting it. Booleans are
// rendered True/False and an unset recurrence as an empty cell.
func (s *Store) ExportCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIO, path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	for _, t := range s.tasks {
		row := []string{
			strconv.Itoa(t.ID),
			t.Name,
			t.DueDate,
			t.Priority,
			t.Category,
			boolText(t.Completed),
			string(t.Recurrence),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return f.Close()
}

func boolText(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
