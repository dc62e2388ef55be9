package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// ReadAll parses an NDJSON event log. Unknown fields and unknown kinds
// pass through untouched so newer writers stay readable.
func ReadAll(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return records, fmt.Errorf("event log line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read event log: %w", err)
	}
	return records, nil
}
