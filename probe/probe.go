// Package probe computes native pagination unit counts host-side, without a
// browser. The counts are advisory: renderer modules remain the authority
// on clamping, but a probe lets the engine log when a requested page will be
// clamped and report accurate counts for failed renders.
package probe

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/drummonds/goshot/format"
)

// NativeUnitCount returns the number of native pages/sheets for formats
// with a host-side probe. The second return is false when no probe exists
// for the tag.
func NativeUnitCount(tag format.Tag, data []byte) (int, bool, error) {
	switch tag {
	case format.PDF:
		count, err := pdfPageCount(data)
		return count, true, err
	case format.XLSX:
		count, err := xlsxSheetCount(data)
		return count, true, err
	default:
		return 0, false, nil
	}
}

func pdfPageCount(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("unable to read PDF: %w", err)
	}
	return reader.NumPage(), nil
}

func xlsxSheetCount(data []byte) (int, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("unable to read workbook: %w", err)
	}
	defer file.Close()

	return len(file.GetSheetList()), nil
}
