package conversation

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// WriteCSV writes items as a spreadsheet-friendly transcript. The leading
// byte order mark makes spreadsheet tools pick UTF-8.
func WriteCSV(w io.Writer, items []Item, now time.Time) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "speaker", "message"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	stamp := now.Format(time.RFC3339)
	for _, it := range items {
		if it.Type != "" && it.Type != TypeMessage {
			continue
		}
		if err := cw.Write([]string{stamp, it.Speaker(), it.DisplayText()}); err != nil {
			return fmt.Errorf("write item %s: %w", it.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
