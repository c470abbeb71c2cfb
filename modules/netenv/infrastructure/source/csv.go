package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	gerrors "github.com/go-faster/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/iota-uz/member-import/modules/netenv/domain/record"
)

type Encoding string

const (
	EncodingAuto        Encoding = "auto"
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1252 Encoding = "windows-1252"
	EncodingLatin1      Encoding = "latin1"
)

// sniffSize is how much of a CSV file is inspected for encoding and delimiter.
const sniffSize = 64 << 10

func ParseEncoding(v string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "auto":
		return EncodingAuto, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "windows-1252", "cp1252":
		return EncodingWindows1252, nil
	case "latin1", "iso-8859-1":
		return EncodingLatin1, nil
	default:
		return "", gerrors.Errorf("invalid encoding %q (expected auto|utf-8|windows-1252|latin1)", v)
	}
}

type csvRows struct {
	r     *csv.Reader
	close func() error
}

func openCSV(path string, enc Encoding, comma rune) (*csvRows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := stripUTF8BOM(bufio.NewReaderSize(f, sniffSize))
	head, err := br.Peek(sniffSize)
	if err != nil && !gerrors.Is(err, io.EOF) && !gerrors.Is(err, bufio.ErrBufferFull) {
		_ = f.Close()
		return nil, err
	}
	truncated := len(head) == sniffSize

	if enc == "" || enc == EncodingAuto {
		enc = EncodingUTF8
		if !looksUTF8(head, truncated) {
			enc = EncodingWindows1252
		}
	}

	var in io.Reader = br
	switch enc {
	case EncodingUTF8:
	case EncodingWindows1252:
		in = transform.NewReader(br, charmap.Windows1252.NewDecoder())
	case EncodingLatin1:
		in = transform.NewReader(br, charmap.ISO8859_1.NewDecoder())
	default:
		_ = f.Close()
		return nil, gerrors.Errorf("unsupported encoding %q", enc)
	}

	if comma == 0 {
		comma = sniffComma(head)
	}

	r := csv.NewReader(in)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = false
	r.ReuseRecord = false
	return &csvRows{r: r, close: f.Close}, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

// looksUTF8 tolerates a rune cut in half at the end of a truncated sample.
func looksUTF8(b []byte, truncated bool) bool {
	if utf8.Valid(b) {
		return true
	}
	if !truncated {
		return false
	}
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			return utf8.Valid(b[:i])
		}
	}
	return false
}

func sniffComma(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func (c *csvRows) Next() (int, []string, error) {
	row, err := c.r.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if gerrors.As(err, &parseErr) {
			return parseErr.StartLine, nil, &record.RowError{Line: parseErr.StartLine, Err: err}
		}
		return 0, nil, err
	}
	line, _ := c.r.FieldPos(0)
	return line, row, nil
}

func (c *csvRows) Close() error {
	return c.close()
}
