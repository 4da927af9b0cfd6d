package handler

import (
    "bytes"
    "fmt"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/xuri/excelize/v2"

    "github.com/iliyamo/hall-pass-service/internal/repository"
)

// ExportHandler produces the pass history workbook administrators
// download for record keeping.
type ExportHandler struct {
    Passes *repository.PassRepo
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(passes *repository.PassRepo) *ExportHandler {
    if passes == nil {
        panic("nil repository passed to NewExportHandler")
    }
    return &ExportHandler{Passes: passes}
}

// History handles GET /v1/admin/passes/export.  The from and to query
// parameters bound the report by request date (YYYY-MM-DD); they
// default to the last 30 days.  The response is an .xlsx attachment.
func (h *ExportHandler) History(c echo.Context) error {
    to := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
    from := to.AddDate(0, 0, -30)
    if s := c.QueryParam("from"); s != "" {
        t, err := time.Parse("2006-01-02", s)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "from must be YYYY-MM-DD"})
        }
        from = t
    }
    if s := c.QueryParam("to"); s != "" {
        t, err := time.Parse("2006-01-02", s)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "to must be YYYY-MM-DD"})
        }
        // inclusive end date
        to = t.Add(24 * time.Hour)
    }
    if !from.Before(to) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "from must be before to"})
    }

    details, err := h.Passes.ListHistoryDetailed(c.Request().Context(), from, to, 0)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }

    buf, err := buildHistoryWorkbook(details)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "generate workbook failed"})
    }
    filename := fmt.Sprintf("passes_%s_%s.xlsx",
        from.Format("2006-01-02"), to.Add(-24*time.Hour).Format("2006-01-02"))
    c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
    return c.Blob(http.StatusOK,
        "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func buildHistoryWorkbook(details []*repository.PassDetail) (*bytes.Buffer, error) {
    f := excelize.NewFile()
    defer f.Close()

    const sheet = "Passes"
    idx, err := f.NewSheet(sheet)
    if err != nil {
        return nil, err
    }
    f.SetActiveSheet(idx)
    _ = f.DeleteSheet("Sheet1")

    headerStyle, _ := f.NewStyle(&excelize.Style{
        Font:      &excelize.Font{Bold: true, Size: 11},
        Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
        Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
    })

    headers := []string{"Pass ID", "Student", "Email", "Origin", "Destination",
        "Status", "Requested", "Approved", "Departed", "Returned", "Limit (min)", "Overtime"}
    for i, title := range headers {
        cell, _ := excelize.CoordinatesToCellName(i+1, 1)
        _ = f.SetCellValue(sheet, cell, title)
        _ = f.SetCellStyle(sheet, cell, cell, headerStyle)
    }
    _ = f.SetColWidth(sheet, "A", "A", 10)
    _ = f.SetColWidth(sheet, "B", "E", 22)
    _ = f.SetColWidth(sheet, "F", "J", 18)

    for r, d := range details {
        row := r + 2
        values := []interface{}{
            d.ID, d.StudentName, d.StudentEmail, d.OriginName, d.DestinationName,
            string(d.Status), stamp(&d.RequestedAt), stamp(d.ApprovedAt),
            stamp(d.DepartedAt), stamp(d.ReturnedAt), d.TimeLimitMinutes, d.IsOvertime,
        }
        for i, v := range values {
            cell, _ := excelize.CoordinatesToCellName(i+1, row)
            _ = f.SetCellValue(sheet, cell, v)
        }
    }

    var buf bytes.Buffer
    if err := f.Write(&buf); err != nil {
        return nil, err
    }
    return &buf, nil
}

// stamp formats a nullable timestamp for a spreadsheet cell.
func stamp(t *time.Time) string {
    if t == nil {
        return ""
    }
    return t.UTC().Format("2006-01-02 15:04:05")
}
