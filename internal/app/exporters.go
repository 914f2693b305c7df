package app

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/tealeg/xlsx/v3"
)

// Exporter writes a timetable in one download format
type Exporter interface {
	ContentType() string
	Extension() string
	Write(w io.Writer, t Timetable) error
}

// NewExporter returns the exporter for format ("json", "csv" or "xlsx")
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "", "json":
		return JSONExporter{}, nil
	case "csv":
		return CSVExporter{}, nil
	case "xlsx":
		return XLSXExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
}

// ExportFilename is the download name for an exporter
func ExportFilename(e Exporter) string {
	return ExportBaseName + "." + e.Extension()
}

// WriteExport sends t as a file attachment
func WriteExport(w http.ResponseWriter, e Exporter, t Timetable) {
	w.Header().Set("Content-Type", e.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", ExportFilename(e)))

	if err := e.Write(w, t); err != nil {
		log.Printf("Error writing %s export: %v", e.Extension(), err)
		http.Error(w, ErrInternalServer, http.StatusInternalServerError)
	}
}

// tableRows lays the timetable out as Day, Period 1..8 rows
func tableRows(t Timetable) [][]string {
	header := append([]string{"Day"}, PeriodHeaders()...)
	rows := [][]string{header}
	for _, day := range Weekdays {
		row := make([]string, 0, Periods+1)
		row = append(row, string(day))
		for period := 0; period < Periods; period++ {
			row = append(row, t.Subject(day, period))
		}
		rows = append(rows, row)
	}
	return rows
}

// JSONExporter writes the serialized form, pretty-printed
type JSONExporter struct{}

func (JSONExporter) ContentType() string { return "application/json; charset=utf-8" }
func (JSONExporter) Extension() string   { return "json" }

func (JSONExporter) Write(w io.Writer, t Timetable) error {
	data, err := SerializeIndent(t)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// CSVExporter writes one row per weekday
type CSVExporter struct{}

func (CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }
func (CSVExporter) Extension() string   { return "csv" }

func (CSVExporter) Write(w io.Writer, t Timetable) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(tableRows(t)); err != nil {
		return err
	}
	return cw.Error()
}

// XLSXExporter writes a spreadsheet with a single "Timetable" sheet
type XLSXExporter struct{}

const xlsxSheetName = "Timetable"

func (XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (XLSXExporter) Extension() string { return "xlsx" }

func (XLSXExporter) Write(w io.Writer, t Timetable) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(xlsxSheetName)
	if err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	for _, values := range tableRows(t) {
		row := sheet.AddRow()
		for _, value := range values {
			row.AddCell().SetString(value)
		}
	}

	return file.Write(w)
}
