package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"wisefido-pose/internal/models"

	"github.com/xuri/excelize/v2"
)

// FallEventExportSheet 导出工作表名称
const FallEventExportSheet = "Fall Events"

// FallEventExportHeader 导出表头
var FallEventExportHeader = []string{
	"Event ID",
	"User ID",
	"Session ID",
	"Detected At",
	"Severity",
	"Confidence",
	"Body Angle",
	"Fall Type",
	"Status",
	"False Positive",
	"Feedback",
	"Rules Fired",
}

var fallEventColumnWidths = []float64{38, 20, 20, 22, 10, 12, 12, 24, 16, 14, 30, 40}

// GenerateFallEventExport 生成跌倒事件 Excel 文件，events 为空时只生成表头
func GenerateFallEventExport(events []*models.FallEvent) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := FallEventExportSheet
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	// 删除默认的 Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range FallEventExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, fallEventColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, e := range events {
		feedback := ""
		if e.UserFeedback != nil {
			feedback = *e.UserFeedback
		}
		falsePositive := "No"
		if e.FalsePositive {
			falsePositive = "Yes"
		}
		row := []any{
			e.ID,
			e.UserID,
			e.SessionID,
			e.DetectedAt.UTC().Format(time.RFC3339),
			string(e.Severity),
			e.ConfidenceScore,
			e.BodyAngle,
			e.FallType,
			string(e.Status),
			falsePositive,
			feedback,
			e.RulesFired,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write excel: %w", err)
	}
	return buf.Bytes(), nil
}
