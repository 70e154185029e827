package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheet    = "Zahtjevi"
	xlsxMimeType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportDateTime = "02.01.2006. 15:04"
)

var exportColumns = []struct {
	header string
	width  float64
	value  func(r *models.FormationRequest) any
}{
	{"ID", 8, func(r *models.FormationRequest) any { return r.ID }},
	{"Company", 30, func(r *models.FormationRequest) any { return r.CompanyName }},
	{"Type", 8, func(r *models.FormationRequest) any { return r.CompanyType }},
	{"Status", 18, func(r *models.FormationRequest) any { return string(r.Status) }},
	{"Activity", 34, func(r *models.FormationRequest) any {
		if r.Activity == nil {
			return ""
		}
		return r.Activity.Code + " - " + r.Activity.Description
	}},
	{"Capital", 12, func(r *models.FormationRequest) any { return r.Capital.InexactFloat64() }},
	{"Price", 10, func(r *models.FormationRequest) any { return r.Price.InexactFloat64() }},
	{"Currency", 9, func(r *models.FormationRequest) any { return r.Currency }},
	{"Founders", 40, func(r *models.FormationRequest) any { return founderSummary(r.Founders) }},
	{"Email", 26, func(r *models.FormationRequest) any { return r.Email }},
	{"Phone", 16, func(r *models.FormationRequest) any { return r.Phone }},
	{"City", 16, func(r *models.FormationRequest) any { return r.City }},
	{"Created", 18, func(r *models.FormationRequest) any { return r.CreatedAt.Format(exportDateTime) }},
}

func founderSummary(founders []models.Founder) string {
	parts := make([]string, 0, len(founders))
	for _, f := range founders {
		parts = append(parts, fmt.Sprintf("%s (%s%%)", f.Name, f.SharePercentage.String()))
	}
	return strings.Join(parts, "; ")
}

// buildExport renders requests into a single-sheet workbook.
func buildExport(requests []models.FormationRequest) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range exportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, col.header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(exportSheet, name, name, col.width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for row := range requests {
		values := make([]any, len(exportColumns))
		for i, col := range exportColumns {
			values[i] = col.value(&requests[row])
		}
		cell, _ := excelize.CoordinatesToCellName(1, row+2)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
	actor, ok := authenticated(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.formation.ListAll(r.Context(), actor, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := buildExport(list)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := "company-requests-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", xlsxMimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
