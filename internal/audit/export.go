package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"
)

var csvHeader = []string{"id", "occurred_at", "user_id", "action", "resource", "ip", "user_agent", "success", "details"}

// WriteCSV renders entries as CSV with a header row.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		details := ""
		if len(e.Details) > 0 {
			raw, err := json.Marshal(e.Details)
			if err != nil {
				return nil, err
			}
			details = string(raw)
		}
		record := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.UserID,
			e.Action,
			e.Resource,
			e.IP,
			e.UserAgent,
			strconv.FormatBool(e.Success),
			details,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
