// Package dat reads one semicolon-delimited source file against its declared
// schema and yields typed rows. Columns are resolved through the header line,
// so field order on disk does not have to match the registry's declared order.
package dat

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/wegman-software/dat2sqlite-go/internal/config"
	"github.com/wegman-software/dat2sqlite-go/internal/schema"
)

const delimiter = ";"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RowError is a defect in a single row. In the default skip-and-warn mode the
// row is dropped and counted; in strict mode it aborts the file.
type RowError struct {
	File   string
	Line   int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s:%d: column %s: %v", e.File, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Row is one parsed record. Values are keyed by the declared field name;
// optional fields that were empty in the source are absent.
type Row struct {
	Line   int
	values map[string]any
}

// Has reports whether the field carried a value.
func (r Row) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Int returns an integer-kinded field (id, ref, code, flag).
func (r Row) Int(name string) (int64, bool) {
	v, ok := r.values[name].(int64)
	return v, ok
}

// Float returns a coordinate field.
func (r Row) Float(name string) (float64, bool) {
	v, ok := r.values[name].(float64)
	return v, ok
}

// Text returns a text field.
func (r Row) Text(name string) (string, bool) {
	v, ok := r.values[name].(string)
	return v, ok
}

// IntOr returns the field value or a fallback when absent.
func (r Row) IntOr(name string, fallback int64) int64 {
	if v, ok := r.Int(name); ok {
		return v
	}
	return fallback
}

// TextOr returns the field value or a fallback when absent.
func (r Row) TextOr(name, fallback string) string {
	if v, ok := r.Text(name); ok {
		return v
	}
	return fallback
}

// FileReport summarizes one pass over a file.
type FileReport struct {
	File      string
	RowsRead  int // data rows seen, including dropped ones
	RowsBad   int // rows dropped for a RowError
	RowErrors []*RowError
}

// Reader reads one file category. Rows re-opens the file on every call, so a
// Reader can be restarted as often as needed.
type Reader struct {
	path     string
	sch      schema.FileSchema
	encoding string
	strict   bool
}

// NewReader creates a reader for path with the given declared schema.
// encoding is one of the config.Encoding constants.
func NewReader(path string, sch schema.FileSchema, encoding string, strict bool) *Reader {
	return &Reader{path: path, sch: sch, encoding: encoding, strict: strict}
}

// Rows reads the whole file from the start, invoking fn for every valid row.
// Malformed rows are collected in the report; in strict mode the first one is
// returned as the error. A non-nil error from fn stops the pass.
func (r *Reader) Rows(fn func(Row) error) (*FileReport, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", r.path, err)
	}
	defer f.Close()
	return r.read(f, fn)
}

func (r *Reader) read(src io.Reader, fn func(Row) error) (*FileReport, error) {
	report := &FileReport{File: r.sch.Category}

	var reader io.Reader = src
	if r.encoding == config.EncodingLatin2 {
		reader = transform.NewReader(src, charmap.ISO8859_2.NewDecoder())
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	var columns []string // header name per position, resolved against the schema

	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if line == 1 {
			raw = bytes.TrimPrefix(raw, utf8BOM)
			cols, err := r.resolveHeader(string(raw))
			if err != nil {
				return nil, err
			}
			columns = cols
			continue
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		report.RowsRead++

		row, rowErr := r.parseRow(string(raw), line, columns)
		if rowErr != nil {
			if r.strict {
				return report, rowErr
			}
			report.RowsBad++
			report.RowErrors = append(report.RowErrors, rowErr)
			continue
		}
		if err := fn(row); err != nil {
			return report, err
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("failed to read %s: %w", r.path, err)
	}
	if columns == nil {
		return report, fmt.Errorf("%s: missing header line", r.sch.Category)
	}
	return report, nil
}

// resolveHeader maps the header line to declared field names. Header columns
// not present in the schema are kept as "" and skipped per row. A required
// declared field missing from the header is a structural defect.
func (r *Reader) resolveHeader(header string) ([]string, error) {
	parts := strings.Split(header, delimiter)
	columns := make([]string, len(parts))
	seen := map[string]bool{}
	for i, p := range parts {
		name := strings.TrimSpace(p)
		if f, ok := r.sch.Field(name); ok {
			columns[i] = f.Name
			seen[f.Name] = true
		}
	}
	for _, f := range r.sch.Fields {
		if f.Required && !seen[f.Name] {
			return nil, fmt.Errorf("%s: header is missing required column %s", r.sch.Category, f.Name)
		}
	}
	return columns, nil
}

func (r *Reader) parseRow(text string, line int, columns []string) (Row, *RowError) {
	if r.encoding == config.EncodingUTF8 && !utf8.ValidString(text) {
		return Row{}, &RowError{File: r.sch.Category, Line: line, Err: fmt.Errorf("invalid UTF-8")}
	}

	fields := strings.Split(text, delimiter)
	// Tolerate one trailing delimiter.
	if len(fields) == len(columns)+1 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields) > len(columns) {
		return Row{}, &RowError{
			File: r.sch.Category, Line: line,
			Err: fmt.Errorf("row has %d fields, header declares %d", len(fields), len(columns)),
		}
	}

	row := Row{Line: line, values: make(map[string]any, len(columns))}
	for i, name := range columns {
		if name == "" {
			continue // header column not declared in the schema
		}
		f, _ := r.sch.Field(name)
		var value string
		if i < len(fields) {
			value = strings.TrimSpace(fields[i])
		}
		if value == "" {
			if f.Required {
				return Row{}, &RowError{File: r.sch.Category, Line: line, Column: name, Err: fmt.Errorf("required field is empty")}
			}
			continue
		}
		v, err := coerce(value, f.Kind)
		if err != nil {
			return Row{}, &RowError{File: r.sch.Category, Line: line, Column: name, Err: err}
		}
		row.values[name] = v
	}
	return row, nil
}

// coerce converts a raw field to its semantic type.
func coerce(value string, kind schema.Kind) (any, error) {
	switch kind {
	case schema.KindID, schema.KindRef, schema.KindCode, schema.KindFlag:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", value)
		}
		return n, nil
	case schema.KindCoord:
		// Coordinates carry an explicit sign prefix in some exports.
		v := strings.TrimPrefix(value, "+")
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("not a coordinate: %q", value)
		}
		return f, nil
	default:
		return value, nil
	}
}
