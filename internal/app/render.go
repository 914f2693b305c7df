package app

import (
	"bytes"
	"html/template"
	"strconv"
)

const fullTimetableTemplate = `<table class="display-table"><thead><tr><th>Day</th>` +
	`{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead><tbody>` +
	`{{range .Rows}}<tr><td>{{.Day}}</td>{{range .Subjects}}<td>{{.}}</td>{{end}}</tr>{{end}}` +
	`</tbody></table>`

const dayScheduleTemplate = `<div class="day-view"><h3>{{.Day}}</h3><table class="day-table">` +
	`<thead><tr><th>Period</th><th>Subject</th></tr></thead><tbody>` +
	`{{range .Rows}}<tr><td>{{.Label}}</td><td>{{.Subject}}</td></tr>{{end}}` +
	`</tbody></table></div>`

var (
	fullTmpl = template.Must(template.New("full").Parse(fullTimetableTemplate))
	dayTmpl  = template.Must(template.New("day").Parse(dayScheduleTemplate))
)

type fullRow struct {
	Day      Weekday
	Subjects []string
}

type dayRow struct {
	Label   string
	Subject string
}

// PeriodLabel is the display name of a 0-based period
func PeriodLabel(period int) string {
	return "Period " + strconv.Itoa(period+1)
}

// PeriodHeaders returns the display names of all periods
func PeriodHeaders() []string {
	headers := make([]string, Periods)
	for i := range headers {
		headers[i] = PeriodLabel(i)
	}
	return headers
}

// ApplyToFields projects a timetable onto the editable grid
func ApplyToFields(t Timetable) FieldGrid {
	var grid FieldGrid
	for i, day := range Weekdays {
		for period := 0; period < Periods; period++ {
			grid[i][period] = t.Subject(day, period)
		}
	}
	return grid
}

// RenderFull renders the whole week as a table, one row per weekday
func RenderFull(t Timetable) (template.HTML, error) {
	rows := make([]fullRow, 0, len(Weekdays))
	for _, day := range Weekdays {
		subjects := make([]string, Periods)
		for period := range subjects {
			subjects[period] = t.Subject(day, period)
		}
		rows = append(rows, fullRow{Day: day, Subjects: subjects})
	}

	var buf bytes.Buffer
	data := struct {
		Headers []string
		Rows    []fullRow
	}{Headers: PeriodHeaders(), Rows: rows}
	if err := fullTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// RenderDay renders the schedule of a single day
func RenderDay(day Weekday, t Timetable) (template.HTML, error) {
	rows := make([]dayRow, Periods)
	for period := range rows {
		rows[period] = dayRow{Label: PeriodLabel(period), Subject: t.Subject(day, period)}
	}

	var buf bytes.Buffer
	data := struct {
		Day  Weekday
		Rows []dayRow
	}{Day: day, Rows: rows}
	if err := dayTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
