package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	commands "tankfleet-cloud/internal/commands/domain"
	registry "tankfleet-cloud/internal/registry/domain"
)

// BuildCommandHistoryXLSX renders a tank's command history as a workbook:
// one summary sheet, one sheet with a row per command.
func BuildCommandHistoryXLSX(tank *registry.Tank, history []commands.Command, from, to time.Time) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	historySheet := "commands"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(historySheet)

	_ = f.SetCellValue(summarySheet, "A1", "Command History")
	_ = f.SetCellValue(summarySheet, "A3", "Tank")
	_ = f.SetCellValue(summarySheet, "B3", tank.Name)
	_ = f.SetCellValue(summarySheet, "A4", "Tank ID")
	_ = f.SetCellValue(summarySheet, "B4", tank.ID)
	_ = f.SetCellValue(summarySheet, "A5", "From")
	_ = f.SetCellValue(summarySheet, "B5", from.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "To")
	_ = f.SetCellValue(summarySheet, "B6", to.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A7", "Commands")
	_ = f.SetCellValue(summarySheet, "B7", len(history))

	_ = f.SetCellValue(historySheet, "A1", "Command ID")
	_ = f.SetCellValue(historySheet, "B1", "Type")
	_ = f.SetCellValue(historySheet, "C1", "Source")
	_ = f.SetCellValue(historySheet, "D1", "Status")
	_ = f.SetCellValue(historySheet, "E1", "Retries")
	_ = f.SetCellValue(historySheet, "F1", "Created")
	_ = f.SetCellValue(historySheet, "G1", "Dispatched")
	_ = f.SetCellValue(historySheet, "H1", "Acked")
	_ = f.SetCellValue(historySheet, "I1", "Error")
	for i, cmd := range history {
		row := i + 2
		_ = f.SetCellValue(historySheet, fmt.Sprintf("A%d", row), cmd.ID)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("B%d", row), string(cmd.Type))
		_ = f.SetCellValue(historySheet, fmt.Sprintf("C%d", row), string(cmd.Source))
		_ = f.SetCellValue(historySheet, fmt.Sprintf("D%d", row), string(cmd.Status))
		_ = f.SetCellValue(historySheet, fmt.Sprintf("E%d", row), cmd.RetryCount)
		_ = f.SetCellValue(historySheet, fmt.Sprintf("F%d", row), cmd.CreatedAt.Format(time.RFC3339))
		_ = f.SetCellValue(historySheet, fmt.Sprintf("G%d", row), formatOptional(cmd.DispatchedAt))
		_ = f.SetCellValue(historySheet, fmt.Sprintf("H%d", row), formatOptional(cmd.AckedAt))
		_ = f.SetCellValue(historySheet, fmt.Sprintf("I%d", row), cmd.Error)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildFleetStatusPDF renders the fleet roster as a one-page status
// report.
func BuildFleetStatusPDF(tanks []registry.Tank, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fleet Status Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)

	online := 0
	for _, tank := range tanks {
		if tank.IsOnline {
			online++
		}
	}
	pdf.Cell(0, 6, fmt.Sprintf("Tanks: %d (%d online, %d offline)", len(tanks), online, len(tanks)-online))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Tank", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "State", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Light", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Temp (C)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "pH", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Last Seen", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, tank := range tanks {
		state := "offline"
		if tank.IsOnline {
			state = "online"
		}
		pdf.CellFormat(45, 6, tank.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, state, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, formatLight(tank.LightState), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, formatFloat(tank.Temperature, "%.1f"), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, formatFloat(tank.PH, "%.2f"), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, formatOptional(tank.LastSeenAt), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatLight(state *bool) string {
	if state == nil {
		return "unknown"
	}
	if *state {
		return "on"
	}
	return "off"
}

func formatFloat(value *float64, format string) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf(format, *value)
}
