package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type structuredContent struct {
	Columns     []string         `json:"columns"`
	PreviewRows []map[string]any `json:"preview_rows"`
}

// FormatStructured renders spreadsheet content as one line per row:
//
//	Row 1: column1=value1 | column2=value2
//
// Columns follow the declared order; rows without declared columns fall back
// to their own keys, sorted, skipping nulls. Unparseable input renders as "".
func FormatStructured(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var sc structuredContent
	if err := dec.Decode(&sc); err != nil {
		return ""
	}

	lines := make([]string, 0, len(sc.PreviewRows))
	for i, row := range sc.PreviewRows {
		if row == nil {
			continue
		}
		parts := make([]string, 0, len(sc.Columns))
		for _, col := range sc.Columns {
			v, ok := row[col]
			switch {
			case !ok:
				parts = append(parts, col+"=")
			case v == nil:
				parts = append(parts, col+"=N/A")
			default:
				parts = append(parts, fmt.Sprintf("%s=%v", col, v))
			}
		}
		if len(parts) == 0 {
			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if row[k] != nil {
					parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
				}
			}
		}
		lines = append(lines, fmt.Sprintf("Row %d: %s", i+1, strings.Join(parts, " | ")))
	}
	return strings.Join(lines, "\n")
}
