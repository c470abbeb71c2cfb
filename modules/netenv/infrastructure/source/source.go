// Package source streams netenv export rows from CSV or XLSX files.
package source

import (
	"context"
	"io"
	"iter"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	gerrors "github.com/go-faster/errors"

	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrUnknownFormat = gerrors.New("unknown input format")

func ParseFormat(v string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(v))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", gerrors.Errorf("invalid format %q (expected auto|csv|xlsx)", v)
	}
}

type Options struct {
	Format   Format
	Encoding Encoding
	// Sheet selects the XLSX sheet; the first one is used when empty.
	Sheet string
	// Comma is the CSV delimiter; sniffed from the header line when zero.
	Comma rune
}

// rowReader yields raw rows and the line they start on; io.EOF ends the stream.
type rowReader interface {
	Next() (line int, row []string, err error)
	Close() error
}

// Source is a single-pass stream of records in file order.
type Source struct {
	path   string
	format Format
	rows   rowReader
	layout layout
}

func Open(path string, opts Options) (*Source, error) {
	format := opts.Format
	if format == "" || format == FormatAuto {
		detected, err := detectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	var (
		rows rowReader
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = openCSV(path, opts.Encoding, opts.Comma)
	case FormatXLSX:
		rows, err = openXLSX(path, opts.Sheet)
	default:
		return nil, gerrors.Wrapf(ErrUnknownFormat, "%s", format)
	}
	if err != nil {
		return nil, err
	}

	_, header, err := rows.Next()
	if err != nil {
		_ = rows.Close()
		if gerrors.Is(err, io.EOF) {
			return nil, gerrors.Errorf("%s: missing header", path)
		}
		return nil, gerrors.Wrapf(err, "%s: read header", path)
	}
	l, err := newLayout(header)
	if err != nil {
		_ = rows.Close()
		return nil, gerrors.Wrap(err, path)
	}
	return &Source{path: path, format: format, rows: rows, layout: l}, nil
}

func detectFormat(path string) (Format, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case mtype.Is(xlsxMIME):
		return FormatXLSX, nil
	case mtype.Is("application/zip") && ext == ".xlsx":
		return FormatXLSX, nil
	case strings.HasPrefix(mtype.String(), "text/"):
		return FormatCSV, nil
	case ext == ".csv":
		return FormatCSV, nil
	}
	return "", gerrors.Wrapf(ErrUnknownFormat, "%s (%s)", path, mtype.String())
}

func (s *Source) Format() Format { return s.format }

// Header returns the columns in file order.
func (s *Source) Header() []string {
	out := make([]string, len(s.layout.header))
	copy(out, s.layout.header)
	return out
}

// Records yields every data row. Rows that fail to decode come with a
// *record.RowError and the stream goes on; any other error ends it. The
// stream also ends quietly once ctx is done.
func (s *Source) Records(ctx context.Context) iter.Seq2[record.Record, error] {
	return func(yield func(record.Record, error) bool) {
		for ctx.Err() == nil {
			line, row, err := s.rows.Next()
			if gerrors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var rowErr *record.RowError
				if gerrors.As(err, &rowErr) {
					if !yield(record.Record{Line: rowErr.Line}, err) {
						return
					}
					continue
				}
				yield(record.Record{}, gerrors.Wrapf(err, "%s: read", s.path))
				return
			}
			if blank(row) {
				continue
			}
			rec, err := s.layout.decode(line, row)
			if !yield(rec, err) {
				return
			}
		}
	}
}

func (s *Source) Close() error {
	return s.rows.Close()
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
