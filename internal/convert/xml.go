package convert

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"filepipe/internal/constants"
)

const (
	metaRootElement   = "rootElement"
	metaRecordElement = "recordElement"
)

// XMLConverter handles flat record-list documents: a root element whose
// children are records, each record's children being scalar fields. Nested
// structure below the field level is not preserved.
type XMLConverter struct{}

func NewXMLConverter() *XMLConverter {
	return &XMLConverter{}
}

func (c *XMLConverter) Format() string {
	return constants.FormatXML
}

func (c *XMLConverter) ToJSON(data []byte, metadata map[string]string) ([]Record, map[string]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var rootName, recordName string
	var records []Record
	var current Record
	var fieldName string
	var fieldValue strings.Builder
	depth := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				rootName = t.Name.Local
			case 2:
				recordName = t.Name.Local
				current = make(Record)
			case 3:
				fieldName = t.Name.Local
				fieldValue.Reset()
			}
		case xml.CharData:
			if depth == 3 {
				fieldValue.Write(t)
			}
		case xml.EndElement:
			switch depth {
			case 3:
				current[fieldName] = strings.TrimSpace(fieldValue.String())
			case 2:
				records = append(records, current)
			}
			depth--
		}
	}

	if rootName == "" {
		return nil, nil, fmt.Errorf("xml document has no root element")
	}

	outMeta := map[string]string{
		metaRootElement:   rootName,
		metaRecordElement: recordName,
	}
	return records, outMeta, nil
}

func (c *XMLConverter) FromJSON(records []Record, metadata map[string]string) ([]byte, error) {
	rootName := metadata[metaRootElement]
	if rootName == "" {
		rootName = "root"
	}
	recordName := metadata[metaRecordElement]
	if recordName == "" {
		recordName = "record"
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: rootName}}
	if err := encoder.EncodeToken(root); err != nil {
		return nil, fmt.Errorf("failed to encode root element: %w", err)
	}

	for _, record := range records {
		rec := xml.StartElement{Name: xml.Name{Local: recordName}}
		if err := encoder.EncodeToken(rec); err != nil {
			return nil, fmt.Errorf("failed to encode record element: %w", err)
		}

		fields := make([]string, 0, len(record))
		for k := range record {
			fields = append(fields, k)
		}
		sort.Strings(fields)

		for _, field := range fields {
			el := xml.StartElement{Name: xml.Name{Local: field}}
			value := ""
			if v := record[field]; v != nil {
				value = fmt.Sprintf("%v", v)
			}
			if err := encoder.EncodeElement(value, el); err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", field, err)
			}
		}

		if err := encoder.EncodeToken(rec.End()); err != nil {
			return nil, fmt.Errorf("failed to close record element: %w", err)
		}
	}

	if err := encoder.EncodeToken(root.End()); err != nil {
		return nil, fmt.Errorf("failed to close root element: %w", err)
	}
	if err := encoder.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush xml: %w", err)
	}
	return buf.Bytes(), nil
}
