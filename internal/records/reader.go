// Package records reads the product export into header-keyed records.
//
// The export quotes every value and separates fields with `","`, while bare
// separators may appear inside values. Empty fields show up as two adjacent
// separators and are read as the literal "None".
package records

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/maltedev/sneaker-dataset-scraper/internal/logger"
)

// EmptyValue replaces fields that are empty in the export.
const EmptyValue = "None"

const maxLineSize = 16 << 20

var (
	ErrMissingField     = errors.New("missing field")
	ErrInvalidSeparator = errors.New("separator cannot contain a quote")
)

// Record is one row of the export. Header keeps the column order.
type Record struct {
	Header []string
	Values map[string]string
}

func (r Record) Get(key string) (string, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// Require returns the field value or an error wrapping ErrMissingField.
func (r Record) Require(key string) (string, error) {
	v, ok := r.Values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return v, nil
}

func (r Record) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, key := range r.Header {
		v, ok := r.Values[key]
		if !ok {
			continue
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %q", key, v)
	}
	b.WriteByte('}')
	return b.String()
}

type Reader struct {
	separator string
	logger    *slog.Logger
}

func NewReader(separator string, logger *slog.Logger) *Reader {
	if separator == "" {
		separator = ","
	}
	return &Reader{
		separator: separator,
		logger:    logger.With("component", "record_reader"),
	}
}

func (r *Reader) ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	items, err := r.Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	r.logger.Debug("retrieved items", "count", len(items), "path", path)
	return items, nil
}

func (r *Reader) Read(in io.Reader) ([]Record, error) {
	// values are quoted, so a quote in the separator makes rows ambiguous
	if strings.Contains(r.separator, `"`) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeparator, r.separator)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		return nil, nil
	}
	header := r.splitLine(scanner.Text())

	var items []Record
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := r.splitLine(line)
		item := Record{
			Header: header,
			Values: make(map[string]string, len(header)),
		}
		for i, key := range header {
			if i >= len(fields) {
				break
			}
			item.Values[key] = fields[i]
		}

		logger.Trace(context.Background(), r.logger, "read record", "record", item.String())
		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan line: %w", err)
	}

	return items, nil
}

func (r *Reader) splitLine(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	empty := r.separator + `"` + EmptyValue + `"` + r.separator
	// a single pass leaves every second of several consecutive empty fields
	for strings.Contains(line, r.separator+r.separator) {
		line = strings.ReplaceAll(line, r.separator+r.separator, empty)
	}

	parts := strings.Split(line, `"`+r.separator+`"`)
	for i, part := range parts {
		parts[i] = strings.Trim(part, `"`)
	}
	return parts
}
