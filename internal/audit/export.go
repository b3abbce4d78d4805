package audit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedFormat indicates an export format that is not implemented.
// Callers treat this as an expected, non-fatal result.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Export formats.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// Export renders an execution's audit trail in the given format.
// CSV emits one row per audit record. PDF is not yet implemented and returns
// ErrUnsupportedFormat.
func (r *Recorder) Export(executionID, format string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return r.exportCSV(executionID)
	case FormatPDF:
		return nil, fmt.Errorf("pdf: %w", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
}

func (r *Recorder) exportCSV(executionID string) ([]byte, error) {
	records, err := r.Query(executionID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"timestamp", "agent", "action", "status", "message"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.AgentID,
			rec.Action,
			rec.Status,
			rec.Message,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
