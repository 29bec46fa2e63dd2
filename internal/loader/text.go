package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

func parsePlainText(data []byte) (*parsed, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid utf-8 text")
	}
	return &parsed{Content: strings.TrimSpace(string(data)), ContentType: "text/plain"}, nil
}

// parseCSV renders each record as one line of " | " separated cells.
func parseCSV(data []byte) (*parsed, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var sb strings.Builder
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		cells := make([]string, 0, len(record))
		for _, c := range record {
			cells = append(cells, strings.TrimSpace(c))
		}
		line := strings.Join(cells, " | ")
		if strings.Trim(line, " |") == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}
	return &parsed{Content: sb.String(), ContentType: "text/csv"}, nil
}
