package csvio

import (
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/gratbox/graph-csv-sync/internal/record"
)

// MalformedInputError marks a CSV file that cannot produce any usable
// records: absent, empty, missing the key column, or every row invalid.
type MalformedInputError struct {
	Path   string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input %s: %s", e.Path, e.Reason)
}

// Field maps one logical record field to an ordered list of accepted header
// names. The first header matching an alias (case-insensitive) wins.
// Validate, when set, rejects individual rows without failing the load.
type Field struct {
	Name     string
	Aliases  []string
	Required bool
	Validate func(string) error
}

// Schema describes the CSV shape for one task. Key names the logical field
// whose value becomes the record key.
type Schema struct {
	Key    string
	Fields []Field
}

type Loader struct {
	delimiter rune
}

func NewLoader(delimiter rune) *Loader {
	if delimiter == 0 {
		delimiter = ','
	}
	return &Loader{delimiter: delimiter}
}

// Load parses path into desired records following schema. Rows failing
// validation are logged and skipped; the load only fails when no row yields
// a usable key.
func (l *Loader) Load(path string, schema Schema) ([]record.DesiredRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &MalformedInputError{Path: path, Reason: err.Error()}
	}
	defer f.Close()
	return l.load(f, path, schema)
}

func (l *Loader) load(r io.Reader, path string, schema Schema) ([]record.DesiredRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = l.delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &MalformedInputError{Path: path, Reason: "file is empty"}
	}
	if err != nil {
		return nil, &MalformedInputError{Path: path, Reason: fmt.Sprintf("read header: %v", err)}
	}

	columns, err := resolveColumns(header, schema)
	if err != nil {
		return nil, &MalformedInputError{Path: path, Reason: err.Error()}
	}

	var (
		records []record.DesiredRecord
		rowNum  = 1
		skipped int
	)
	for {
		rowNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("Skipping unparseable csv row", "path", path, "row", rowNum, "error", err)
			skipped++
			continue
		}

		rec, err := buildRecord(row, columns, schema)
		if err != nil {
			slog.Warn("Skipping invalid csv row", "path", path, "row", rowNum, "error", err)
			skipped++
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, &MalformedInputError{Path: path, Reason: "no row yields a usable key"}
	}
	if skipped > 0 {
		slog.Info("Loaded csv with skipped rows", "path", path, "loaded", len(records), "skipped", skipped)
	}
	return records, nil
}

// resolveColumns maps each logical field to a header index. Header matching
// is case-insensitive and tolerant of a leading byte-order mark and
// surrounding whitespace.
func resolveColumns(header []string, schema Schema) (map[string]int, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	columns := make(map[string]int)
	for _, field := range schema.Fields {
		idx := -1
		for _, alias := range field.Aliases {
			for i, h := range normalized {
				if h == strings.ToLower(alias) {
					idx = i
					break
				}
			}
			if idx >= 0 {
				break
			}
		}
		if idx < 0 {
			if field.Required {
				return nil, fmt.Errorf("no column matches field %s (aliases %v)", field.Name, field.Aliases)
			}
			continue
		}
		columns[field.Name] = idx
	}

	if _, ok := columns[schema.Key]; !ok {
		return nil, fmt.Errorf("no column matches key field %s", schema.Key)
	}
	return columns, nil
}

func buildRecord(row []string, columns map[string]int, schema Schema) (record.DesiredRecord, error) {
	rec := record.DesiredRecord{Attrs: make(map[string]string)}

	for _, field := range schema.Fields {
		idx, ok := columns[field.Name]
		if !ok || idx >= len(row) {
			continue
		}
		val := strings.TrimSpace(row[idx])
		if val == "" {
			if field.Required {
				return rec, fmt.Errorf("field %s is empty", field.Name)
			}
			continue
		}
		if field.Validate != nil {
			if err := field.Validate(val); err != nil {
				return rec, fmt.Errorf("field %s: %w", field.Name, err)
			}
		}
		if field.Name == schema.Key {
			rec.Key = val
		} else {
			rec.Attrs[field.Name] = val
		}
	}

	if rec.Key == "" {
		return rec, fmt.Errorf("key field %s is empty", schema.Key)
	}
	return rec, nil
}

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidateGUID accepts directory object ids.
func ValidateGUID(s string) error {
	if !guidPattern.MatchString(s) {
		return fmt.Errorf("not a valid GUID: %q", s)
	}
	return nil
}

// ValidateBase64 accepts hardware-hash style payloads.
func ValidateBase64(s string) error {
	if _, err := base64.StdEncoding.DecodeString(s); err != nil {
		return fmt.Errorf("not valid base64: %q", s)
	}
	return nil
}

// ValidateSerial accepts device serial numbers: printable, no whitespace.
func ValidateSerial(s string) error {
	if strings.ContainsAny(s, " \t") {
		return fmt.Errorf("serial contains whitespace: %q", s)
	}
	return nil
}
