package source

import (
	"io"

	gerrors "github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"
)

type xlsxRows struct {
	file *excelize.File
	rows *excelize.Rows
	line int
}

func openXLSX(path, sheet string) (*xlsxRows, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		_ = f.Close()
		return nil, gerrors.Errorf("sheet %q not found", sheet)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, gerrors.Wrapf(err, "sheet %q", sheet)
	}
	return &xlsxRows{file: f, rows: rows}, nil
}

func (x *xlsxRows) Next() (int, []string, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return 0, nil, err
		}
		return 0, nil, io.EOF
	}
	x.line++
	row, err := x.rows.Columns()
	if err != nil {
		return x.line, nil, err
	}
	return x.line, row, nil
}

func (x *xlsxRows) Close() error {
	err := x.rows.Close()
	if cerr := x.file.Close(); err == nil {
		err = cerr
	}
	return err
}
