package convert

import (
	"encoding/json"
	"fmt"

	"filepipe/internal/constants"
)

// JSONConverter handles files already in the canonical format. Input may be
// a JSON array of objects or a single object (treated as one record).
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Format() string {
	return constants.FormatJSON
}

func (c *JSONConverter) ToJSON(data []byte, metadata map[string]string) ([]Record, map[string]string, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err == nil {
		return records, map[string]string{}, nil
	}

	var single Record
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, nil, fmt.Errorf("content is neither a JSON array nor a JSON object: %w", err)
	}
	return []Record{single}, map[string]string{}, nil
}

func (c *JSONConverter) FromJSON(records []Record, metadata map[string]string) ([]byte, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal records: %w", err)
	}
	return data, nil
}
