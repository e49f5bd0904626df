package convert

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"filepipe/internal/constants"
)

const (
	metaDelimiter = "delimiter"
	metaHasHeader = "hasHeader"
	metaColumns   = "columns"
)

// CSVConverter parses delimited text into records keyed by column name.
// The delimiter and header row (or synthesized column names) are carried in
// metadata so the file can be rebuilt in its original shape.
type CSVConverter struct{}

func NewCSVConverter() *CSVConverter {
	return &CSVConverter{}
}

func (c *CSVConverter) Format() string {
	return constants.FormatCSV
}

func (c *CSVConverter) ToJSON(data []byte, metadata map[string]string) ([]Record, map[string]string, error) {
	delimiter := ','
	if d, ok := metadata[metaDelimiter]; ok && d != "" {
		delimiter = rune(d[0])
	}
	hasHeader := true
	if h, ok := metadata[metaHasHeader]; ok {
		hasHeader = h != "false"
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, map[string]string{}, nil
	}

	var columns []string
	dataRows := rows
	if hasHeader {
		columns = rows[0]
		dataRows = rows[1:]
	} else {
		for i := range rows[0] {
			columns = append(columns, fmt.Sprintf("column_%d", i+1))
		}
	}

	records := make([]Record, 0, len(dataRows))
	for _, row := range dataRows {
		record := make(Record, len(columns))
		for i, col := range columns {
			if i < len(row) {
				record[col] = row[i]
			} else {
				record[col] = ""
			}
		}
		records = append(records, record)
	}

	outMeta := map[string]string{
		metaDelimiter: string(delimiter),
		metaHasHeader: fmt.Sprintf("%t", hasHeader),
		metaColumns:   strings.Join(columns, ","),
	}
	return records, outMeta, nil
}

func (c *CSVConverter) FromJSON(records []Record, metadata map[string]string) ([]byte, error) {
	delimiter := ','
	if d, ok := metadata[metaDelimiter]; ok && d != "" {
		delimiter = rune(d[0])
	}
	hasHeader := true
	if h, ok := metadata[metaHasHeader]; ok {
		hasHeader = h != "false"
	}

	columns := columnsFor(records, metadata)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	writer.Comma = delimiter

	if hasHeader {
		if err := writer.Write(columns); err != nil {
			return nil, fmt.Errorf("failed to write csv header: %w", err)
		}
	}

	for _, record := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := record[col]; ok && v != nil {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// columnsFor prefers the original column order from metadata; without it,
// column order falls back to sorted keys of the first record.
func columnsFor(records []Record, metadata map[string]string) []string {
	if cols, ok := metadata[metaColumns]; ok && cols != "" {
		return strings.Split(cols, ",")
	}
	if len(records) == 0 {
		return nil
	}
	columns := make([]string, 0, len(records[0]))
	for col := range records[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
