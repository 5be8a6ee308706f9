// Package csv loads the flat course export into a transformer.Table.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"catalog/internal/transformer"
)

// Options tunes header and cell normalization. The zero value reads a
// comma-separated file with trimmed cells.
type Options struct {
	// Comma is the field delimiter; 0 means ','.
	Comma rune

	// HeaderMap renames source headers (after trimming) to column names.
	// Unmapped headers are lowercased with spaces replaced by '_'.
	HeaderMap map[string]string

	// KeepSpace disables trimming of cell values.
	KeepSpace bool

	LazyQuotes bool
}

// ReadFile opens path and reads it with ReadTable.
func ReadFile(ctx context.Context, path string, opt Options) (*transformer.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadTable(ctx, f, opt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadTable reads a delimited file with a header row fully into memory.
//
// Empty cells become missing (nil) values and short records are padded with
// missing values. The first malformed record, or one with more fields than
// the header, aborts the read with an error naming its line.
func ReadTable(ctx context.Context, r io.Reader, opt Options) (*transformer.Table, error) {
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("read header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &transformer.Table{Columns: normalizeHeader(hdr, opt.HeaderMap)}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, fmt.Errorf("line %d: %w", pe.StartLine, err)
			}
			return nil, fmt.Errorf("csv read: %w", err)
		}

		line, _ := cr.FieldPos(0)
		if len(rec) > len(t.Columns) {
			return nil, fmt.Errorf("line %d: expected %d fields, saw %d", line, len(t.Columns), len(rec))
		}
		row := transformer.NewRow(len(t.Columns))
		row.Line = line

		for i, v := range rec {
			if !opt.KeepSpace {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				row.V[i] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
}

func normalizeHeader(hdr []string, hm map[string]string) []string {
	out := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		if mapped, ok := hm[h]; ok {
			out[i] = mapped
			continue
		}
		out[i] = strings.ReplaceAll(strings.ToLower(h), " ", "_")
	}
	return out
}
