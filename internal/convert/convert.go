package convert

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"filepipe/internal/constants"
	"filepipe/pkg/metrics"
)

// Record is one parsed data record in canonical form.
type Record map[string]interface{}

// Converter translates between one external format and the canonical JSON
// record list. Metadata returned by ToJSON carries whatever FromJSON needs
// to reconstruct the original shape (delimiters, element names).
type Converter interface {
	Format() string
	ToJSON(data []byte, metadata map[string]string) ([]Record, map[string]string, error)
	FromJSON(records []Record, metadata map[string]string) ([]byte, error)
}

// Registry resolves converters by format name or file extension.
type Registry struct {
	byFormat map[string]Converter
}

func NewRegistry() *Registry {
	r := &Registry{byFormat: make(map[string]Converter)}
	r.Register(NewJSONConverter())
	r.Register(NewCSVConverter())
	r.Register(NewXMLConverter())
	return r
}

func (r *Registry) Register(c Converter) {
	r.byFormat[c.Format()] = c
}

func (r *Registry) ForFormat(format string) (Converter, error) {
	c, ok := r.byFormat[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return c, nil
}

// DetectFormat maps a file name to a format by extension; unknown
// extensions default to JSON.
func (r *Registry) DetectFormat(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".tsv":
		return constants.FormatCSV
	case ".xml":
		return constants.FormatXML
	default:
		return constants.FormatJSON
	}
}

// ToJSON converts with the named format's converter and records metrics.
func (r *Registry) ToJSON(data []byte, format string, metadata map[string]string) ([]Record, map[string]string, error) {
	c, err := r.ForFormat(format)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	records, meta, err := c.ToJSON(data, metadata)
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.ConversionsTotal.WithLabelValues(format, "to_json", status).Inc()
	metrics.ObserveConversionDuration(format, "to_json", time.Since(start))
	return records, meta, err
}

// FromJSON reconstructs content in the named format.
func (r *Registry) FromJSON(records []Record, format string, metadata map[string]string) ([]byte, error) {
	c, err := r.ForFormat(format)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := c.FromJSON(records, metadata)
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.ConversionsTotal.WithLabelValues(format, "from_json", status).Inc()
	metrics.ObserveConversionDuration(format, "from_json", time.Since(start))
	return data, err
}
