package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"eduadmin/internal/application/crud"
	"eduadmin/internal/domain/routing"
)

const exportSheet = "Sheet1"

// handleResourceExport downloads the view's current collection as xlsx, one column per
// list column.
func (s *Server) handleResourceExport(w http.ResponseWriter, r *http.Request, d routing.Decision) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	res, v, ok := s.resourceView(r, d)
	if !ok {
		s.renderNotFound(w, r, routing.ViewCommonNotFound)
		return
	}
	ensureLoaded(r.Context(), v, r.URL.Query())
	state := v.Snapshot()

	f, err := buildWorkbook(state)
	if err != nil {
		internalError(w, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("%s-%s.xlsx", res.Name, s.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		zap.S().Warnw("export_write_failed", "resource", res.Name, "error", err)
		return
	}
	zap.S().Infow("export_event", "resource", res.Name, "rows", len(state.Items))
}

// buildWorkbook lays out a header row in bold with an autofilter, then one row per record.
func buildWorkbook(state crud.State) (*excelize.File, error) {
	f := excelize.NewFile()
	cols := state.Resource.Columns

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, c.Label); err != nil {
			f.Close()
			return nil, fmt.Errorf("header %s: %w", cell, err)
		}
		widths[i] = len([]rune(c.Label))
	}
	for rowIdx, rec := range state.Items {
		for i, c := range cols {
			val := c.Value(rec, state.Lookups)
			cell, _ := excelize.CoordinatesToCellName(i+1, rowIdx+2)
			if err := f.SetCellValue(exportSheet, cell, val); err != nil {
				f.Close()
				return nil, fmt.Errorf("cell %s: %w", cell, err)
			}
			widths[i] = max(widths[i], len([]rune(val)))
		}
	}
	if len(cols) == 0 {
		return f, nil
	}

	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, bold); err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	bottom, _ := excelize.CoordinatesToCellName(len(cols), len(state.Items)+1)
	if err := f.AutoFilter(exportSheet, "A1:"+bottom, nil); err != nil {
		f.Close()
		return nil, fmt.Errorf("autofilter: %w", err)
	}
	for i, wd := range widths {
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(exportSheet, name, name, float64(min(wd+2, 60)))
	}
	_ = f.SetDocProps(&excelize.DocProperties{Creator: "eduadmin", Created: time.Now().UTC().Format(time.RFC3339)})
	return f, nil
}
