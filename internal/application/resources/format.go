package resources

import (
	"fmt"
	"strings"
	"time"

	"eduadmin/internal/application/crud"
)

// WeekDays are the weekly pattern day names the API stores, Monday first.
var WeekDays = []string{"Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота", "Воскресенье"}

// DayName maps a weekday to its weekly pattern name.
func DayName(d time.Weekday) string {
	return WeekDays[(int(d)+6)%7]
}

var monthsGenitive = []string{"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря"}

// FormatDate renders an ISO date (or timestamp) as "2 января 2025". Unparseable input
// is returned unchanged.
func FormatDate(s string) string {
	if s == "" {
		return ""
	}
	var t time.Time
	var err error
	if len(s) > len("2006-01-02") {
		t, err = time.Parse(time.RFC3339, s)
	} else {
		t, err = time.Parse("2006-01-02", s)
	}
	if err != nil {
		return s
	}
	return fmt.Sprintf("%d %s %d", t.Day(), monthsGenitive[t.Month()-1], t.Year())
}

// PersonName is "first last", falling back to email and then phone.
func PersonName(r crud.Record) string {
	name := strings.TrimSpace(r.String("first_name") + " " + r.String("last_name"))
	if name != "" {
		return name
	}
	if e := r.String("email"); e != "" {
		return e
	}
	return r.String("phone_number")
}

func nameOf(r crud.Record) string { return r.String("name") }

func yesNo(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
