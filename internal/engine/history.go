package engine

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"acey/internal/models"
)

// History returns a copy of the canonical execution history, oldest first.
func (e *Engine) History() []models.ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ExecutionRecord, len(e.history))
	copy(out, e.history)
	return out
}

// ExportHistory serializes the canonical execution history as JSON or CSV.
func (e *Engine) ExportHistory(format string) ([]byte, error) {
	history := e.History()

	switch format {
	case "json", "":
		data, err := json.MarshalIndent(history, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode history: %w", err)
		}
		return data, nil

	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"intent_id", "type", "approval_type", "status", "error", "duration_ms", "executed_at"}); err != nil {
			return nil, fmt.Errorf("failed to write csv header: %w", err)
		}
		for _, rec := range history {
			row := []string{
				rec.IntentID,
				string(rec.Type),
				rec.ApprovalType,
				string(rec.Status),
				rec.Error,
				strconv.FormatInt(rec.Duration.Milliseconds(), 10),
				rec.ExecutedAt.Format(time.RFC3339),
			}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("failed to write csv row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("failed to flush csv: %w", err)
		}
		return buf.Bytes(), nil
	}

	return nil, fmt.Errorf("unsupported export format %q (want json or csv)", format)
}
