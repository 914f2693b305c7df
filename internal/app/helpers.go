package app

import (
	"net/http"
	"slices"
)

// RequireMethod validates that the request uses one of the allowed HTTP methods
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	if !slices.Contains(methods, r.Method) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// formRow is one weekday row of the input grid
type formRow struct {
	Day   Weekday
	Cells []formCell
}

type formCell struct {
	Name  string
	Value string
}

// formRows lays out the field grid for the page template
func formRows(grid FieldGrid) []formRow {
	rows := make([]formRow, 0, len(Weekdays))
	for i, day := range Weekdays {
		cells := make([]formCell, Periods)
		for period := range cells {
			cells[period] = formCell{Name: FieldName(day, period), Value: grid[i][period]}
		}
		rows = append(rows, formRow{Day: day, Cells: cells})
	}
	return rows
}
