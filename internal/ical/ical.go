// Package ical implements the subset of the iCalendar text format the
// sync engine exchanges with CalDAV servers and local files: line
// unfolding, text escapes, date/date-time values with TZID, and the
// VEVENT/VTODO components.
package ical

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Person is an organizer reference.
type Person struct {
	Name  string
	Email string
}

// Attendee is one ATTENDEE property with its participation status.
type Attendee struct {
	Name     string
	Email    string
	PartStat string
}

// Event is a parsed VEVENT.
type Event struct {
	UID            string
	Summary        string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	AllDay         bool
	RecurrenceRule string
	Organizer      *Person
	Attendees      []Attendee
	UpdatedAt      *time.Time
}

// Todo is a parsed VTODO.
type Todo struct {
	UID         string
	Summary     string
	Description string
	Due         *time.Time
	Completed   *time.Time
	Status      string
	Priority    int
	UpdatedAt   *time.Time
}

// UnfoldLines splits raw iCalendar data into logical lines, joining
// folded continuation lines (lines starting with a space or tab) onto
// their predecessor.
func UnfoldLines(data string) []string {
	raw := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")

	var lines []string
	for _, line := range raw {
		if line == "" {
			continue
		}
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// UnescapeText reverses iCalendar TEXT escaping.
func UnescapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	escaped := false
	for _, r := range s {
		if !escaped {
			if r == '\\' {
				escaped = true
			} else {
				b.WriteRune(r)
			}
			continue
		}
		switch r {
		case 'n', 'N':
			b.WriteByte('\n')
		case '\\', ';', ',':
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
		escaped = false
	}
	return b.String()
}

// EscapeText applies iCalendar TEXT escaping.
func EscapeText(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\n", `\n`,
	)
	return replacer.Replace(s)
}

// parseProperty splits a logical line into name, parameters, and value.
func parseProperty(line string) (name string, params map[string]string, value string, ok bool) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", nil, "", false
	}

	head := line[:colon]
	value = line[colon+1:]

	parts := strings.Split(head, ";")
	name = strings.ToUpper(strings.TrimSpace(parts[0]))
	params = make(map[string]string)
	for _, p := range parts[1:] {
		if eq := strings.Index(p, "="); eq >= 0 {
			key := strings.ToUpper(strings.TrimSpace(p[:eq]))
			val := strings.Trim(p[eq+1:], `"`)
			params[key] = val
		}
	}
	return name, params, value, true
}

// isDateOnly reports whether value is a bare 8-digit date.
func isDateOnly(value string) bool {
	if len(value) != 8 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseDateTime interprets a DATE or DATE-TIME value. dateOnly is true
// for 8-digit values or an explicit VALUE=DATE parameter.
func parseDateTime(value string, params map[string]string) (t time.Time, dateOnly bool, err error) {
	value = strings.TrimSpace(value)
	dateOnly = params["VALUE"] == "DATE" || isDateOnly(value)

	if dateOnly {
		if len(value) < 8 {
			return time.Time{}, false, fmt.Errorf("ical date %q: too short", value)
		}
		t, err = time.ParseInLocation("20060102", value[:8], time.UTC)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parsing ical date %q: %w", value, err)
		}
		return t, true, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err = time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parsing ical datetime %q: %w", value, err)
		}
		return t, false, nil
	}

	loc := time.UTC
	if tzid := params["TZID"]; tzid != "" {
		if parsed, tzErr := time.LoadLocation(tzid); tzErr == nil {
			loc = parsed
		}
	}
	t, err = time.ParseInLocation("20060102T150405", value, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing ical datetime %q: %w", value, err)
	}
	return t.UTC(), false, nil
}

// mailtoAddress strips a mailto: prefix from a CAL-ADDRESS value.
func mailtoAddress(value string) string {
	v := strings.TrimSpace(value)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		return v[7:]
	}
	return v
}

// ParseEvents extracts every VEVENT from raw iCalendar data, applying
// the canonical end defaults: all-day events with a missing or invalid
// end span one day, timed events with end <= start span one hour.
func ParseEvents(data string) []Event {
	var events []Event

	var cur *Event
	var haveEnd bool
	for _, line := range UnfoldLines(data) {
		name, params, value, ok := parseProperty(line)
		if !ok {
			continue
		}

		switch name {
		case "BEGIN":
			if strings.EqualFold(value, "VEVENT") {
				cur = &Event{}
				haveEnd = false
			}
			continue
		case "END":
			if strings.EqualFold(value, "VEVENT") && cur != nil {
				finishEvent(cur, haveEnd)
				events = append(events, *cur)
				cur = nil
			}
			continue
		}
		if cur == nil {
			continue
		}

		switch name {
		case "UID":
			cur.UID = value
		case "SUMMARY":
			cur.Summary = UnescapeText(value)
		case "DESCRIPTION":
			cur.Description = UnescapeText(value)
		case "LOCATION":
			cur.Location = UnescapeText(value)
		case "DTSTART":
			if t, dateOnly, err := parseDateTime(value, params); err == nil {
				cur.Start = t
				cur.AllDay = dateOnly
			}
		case "DTEND":
			if t, _, err := parseDateTime(value, params); err == nil {
				cur.End = t
				haveEnd = true
			}
		case "RRULE":
			cur.RecurrenceRule = value
		case "ORGANIZER":
			cur.Organizer = &Person{
				Name:  params["CN"],
				Email: mailtoAddress(value),
			}
		case "ATTENDEE":
			cur.Attendees = append(cur.Attendees, Attendee{
				Name:     params["CN"],
				Email:    mailtoAddress(value),
				PartStat: strings.ToUpper(params["PARTSTAT"]),
			})
		case "DTSTAMP", "LAST-MODIFIED":
			if t, _, err := parseDateTime(value, params); err == nil {
				stamp := t
				cur.UpdatedAt = &stamp
			}
		}
	}

	return events
}

// finishEvent applies the summary default and the end-clamp rules.
func finishEvent(ev *Event, haveEnd bool) {
	if ev.Summary == "" {
		ev.Summary = "Untitled event"
	}

	if ev.AllDay {
		if !haveEnd || !ev.End.After(ev.Start) {
			ev.End = ev.Start.AddDate(0, 0, 1)
		}
		return
	}
	if !haveEnd || !ev.End.After(ev.Start) {
		ev.End = ev.Start.Add(time.Hour)
	}
}

// ParseTodos extracts every VTODO from raw iCalendar data.
func ParseTodos(data string) []Todo {
	var todos []Todo

	var cur *Todo
	for _, line := range UnfoldLines(data) {
		name, params, value, ok := parseProperty(line)
		if !ok {
			continue
		}

		switch name {
		case "BEGIN":
			if strings.EqualFold(value, "VTODO") {
				cur = &Todo{}
			}
			continue
		case "END":
			if strings.EqualFold(value, "VTODO") && cur != nil {
				if cur.Summary == "" {
					cur.Summary = "Untitled task"
				}
				todos = append(todos, *cur)
				cur = nil
			}
			continue
		}
		if cur == nil {
			continue
		}

		switch name {
		case "UID":
			cur.UID = value
		case "SUMMARY":
			cur.Summary = UnescapeText(value)
		case "DESCRIPTION":
			cur.Description = UnescapeText(value)
		case "DUE":
			if t, _, err := parseDateTime(value, params); err == nil {
				due := t
				cur.Due = &due
			}
		case "COMPLETED":
			if t, _, err := parseDateTime(value, params); err == nil {
				done := t
				cur.Completed = &done
			}
		case "STATUS":
			cur.Status = strings.ToUpper(value)
		case "PRIORITY":
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				cur.Priority = n
			}
		case "DTSTAMP", "LAST-MODIFIED":
			if t, _, err := parseDateTime(value, params); err == nil {
				stamp := t
				cur.UpdatedAt = &stamp
			}
		}
	}

	return todos
}

// RenderEvent serializes a single event as a standalone VCALENDAR.
func RenderEvent(ev Event) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//syncbox//EN\r\n")
	b.WriteString("BEGIN:VEVENT\r\n")
	fmt.Fprintf(&b, "UID:%s\r\n", ev.UID)
	fmt.Fprintf(&b, "DTSTAMP:%s\r\n", formatDateTimeUTC(time.Now()))

	if ev.AllDay {
		fmt.Fprintf(&b, "DTSTART;VALUE=DATE:%s\r\n", ev.Start.Format("20060102"))
		fmt.Fprintf(&b, "DTEND;VALUE=DATE:%s\r\n", ev.End.Format("20060102"))
	} else {
		fmt.Fprintf(&b, "DTSTART:%s\r\n", formatDateTimeUTC(ev.Start))
		fmt.Fprintf(&b, "DTEND:%s\r\n", formatDateTimeUTC(ev.End))
	}

	fmt.Fprintf(&b, "SUMMARY:%s\r\n", EscapeText(ev.Summary))
	if ev.Description != "" {
		fmt.Fprintf(&b, "DESCRIPTION:%s\r\n", EscapeText(ev.Description))
	}
	if ev.Location != "" {
		fmt.Fprintf(&b, "LOCATION:%s\r\n", EscapeText(ev.Location))
	}
	if ev.RecurrenceRule != "" {
		fmt.Fprintf(&b, "RRULE:%s\r\n", ev.RecurrenceRule)
	}

	b.WriteString("END:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

// RenderTodo serializes a single task as a standalone VCALENDAR.
func RenderTodo(t Todo) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//syncbox//EN\r\n")
	b.WriteString("BEGIN:VTODO\r\n")
	fmt.Fprintf(&b, "UID:%s\r\n", t.UID)
	fmt.Fprintf(&b, "DTSTAMP:%s\r\n", formatDateTimeUTC(time.Now()))
	fmt.Fprintf(&b, "SUMMARY:%s\r\n", EscapeText(t.Summary))

	if t.Description != "" {
		fmt.Fprintf(&b, "DESCRIPTION:%s\r\n", EscapeText(t.Description))
	}
	if t.Due != nil {
		fmt.Fprintf(&b, "DUE:%s\r\n", formatDateTimeUTC(*t.Due))
	}
	if t.Completed != nil {
		fmt.Fprintf(&b, "COMPLETED:%s\r\n", formatDateTimeUTC(*t.Completed))
	}
	if t.Status != "" {
		fmt.Fprintf(&b, "STATUS:%s\r\n", t.Status)
	}
	if t.Priority > 0 {
		fmt.Fprintf(&b, "PRIORITY:%d\r\n", t.Priority)
	}

	b.WriteString("END:VTODO\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

// formatDateTimeUTC renders a timestamp in basic UTC form.
func formatDateTimeUTC(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
