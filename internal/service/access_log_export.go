package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"clinic-core/internal/domain"
	"clinic-core/internal/repository"

	"github.com/xuri/excelize/v2"
)

const accessLogSheet = "Access Log"

var accessLogExportHeader = []string{
	"Time (UTC)", "User", "Route", "Resource", "Action", "Decision", "IP", "User Agent", "Detail",
}

var accessLogColumnWidths = []float64{22, 20, 28, 10, 10, 10, 16, 50, 24}

// AccessLogExporter renders a tenant's access log as an XLSX workbook.
type AccessLogExporter struct {
	reader repository.AccessLogReader
}

func NewAccessLogExporter(reader repository.AccessLogReader) *AccessLogExporter {
	return &AccessLogExporter{reader: reader}
}

// ExportXLSX returns the workbook bytes and the number of exported rows.
func (e *AccessLogExporter) ExportXLSX(ctx context.Context, p *repository.Partition, filter repository.AccessLogFilter) ([]byte, int, error) {
	entries, err := e.reader.ListAccessLogs(ctx, p, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read access log: %w", err)
	}
	data, err := renderAccessLogWorkbook(entries)
	if err != nil {
		return nil, 0, err
	}
	return data, len(entries), nil
}

func renderAccessLogWorkbook(entries []domain.AccessLogEntry) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo needs the file open; close explicitly on every path.

	index, err := f.NewSheet(accessLogSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range accessLogExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(accessLogSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(accessLogSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(accessLogSheet, name, name, accessLogColumnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, e := range entries {
		row := i + 2
		values := []any{
			e.At.UTC().Format(time.DateTime),
			derefString(e.UserID),
			e.RouteID,
			derefInt64(e.ResourceID),
			string(e.Action),
			e.Decision,
			e.IP,
			e.UserAgent,
			e.Detail,
		}
		for col, v := range values {
			if v == nil || v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(accessLogSheet, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	if err := f.SetPanes(accessLogSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefInt64(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}
