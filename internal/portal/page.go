package portal

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Known page titles. The login title doubles as the session-expiry signal.
const (
	LoginPageTitle   = "Please log in to continue..."
	CheckInPageTitle = "Check-In"
)

// Page models isolate the portal's markup from the engines: selectors live
// here and nowhere else, so an upstream template change is a one-file fix
// testable against canned HTML.

// SelfRegistrationPage is the parsed /selfregistration document.
type SelfRegistrationPage struct {
	Title       string
	AccountName string
	CSRFToken   string
	Events      []Event
}

// IsLogin reports whether the portal bounced us to the login page.
func (p *SelfRegistrationPage) IsLogin() bool { return p.Title == LoginPageTitle }

// ParseSelfRegistration builds the page model from raw HTML. Event time
// windows are anchored to now's date since the page shows clock times only.
func ParseSelfRegistration(body []byte, now time.Time) (*SelfRegistrationPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse self-registration page: %w", err)
	}

	page := &SelfRegistrationPage{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		AccountName: strings.TrimSpace(doc.Find("span.side-menu-title.side-menu-name").First().Text()),
	}
	if content, ok := doc.Find(`meta[name="csrf-token"]`).First().Attr("content"); ok {
		page.CSRFToken = content
	}
	page.Events = parseEvents(doc, now)
	return page, nil
}

const noActivityMarker = "There is currently no activity for which you can register yourself."

func parseEvents(doc *goquery.Document, now time.Time) []Event {
	sections := doc.Find("section.box-typical.box-typical-padding")
	if sections.Length() == 0 || strings.Contains(sections.First().Text(), noActivityMarker) {
		return nil
	}

	var events []Event
	sections.Each(func(_ int, sec *goquery.Selection) {
		id, ok := sec.Attr("data-activities-id")
		if !ok || id == "" {
			return
		}
		cols := sec.Find("div.col-md-4")
		if cols.Length() < 4 {
			return
		}

		evt := Event{
			ID:           id,
			ActivityName: strings.TrimSpace(cols.Eq(1).Text()),
			Lecturer:     strings.TrimSpace(cols.Eq(2).Text()),
			Space:        strings.TrimSpace(cols.Eq(3).Text()),
			Status:       StatusUnknown,
		}
		evt.StartTime, evt.EndTime = parseEventWindow(strings.TrimSpace(cols.Eq(0).Text()), now)

		sec.Find("div.selfregistration_status").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
			if opt.HasClass("hidden") {
				return true
			}
			if widget := opt.Find("div.widget-simple-sm-bottom"); widget.Length() > 0 {
				evt.Status = EventStatus(strings.TrimSpace(widget.First().Text()))
				return false
			}
			if opt.Find("button.btn.btn-default").Length() > 0 {
				// A visible register button means the portal is still waiting
				// for a code.
				evt.Status = StatusNotPresent
				return false
			}
			return true
		})

		events = append(events, evt)
	})
	return events
}

// parseEventWindow turns "09:00 - 10:30" into concrete times on now's date.
func parseEventWindow(window string, now time.Time) (start, end *time.Time) {
	parts := strings.SplitN(window, " - ", 2)
	if len(parts) != 2 {
		return nil, nil
	}
	return clockOn(parts[0], now), clockOn(parts[1], now)
}

func clockOn(clock string, day time.Time) *time.Time {
	t, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return nil
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
	return &at
}

// AttendancePage is the parsed weekly attendance document.
type AttendancePage struct {
	Title       string
	AccountName string
	Activities  []Activity
}

// IsLogin reports whether the portal bounced us to the login page.
func (p *AttendancePage) IsLogin() bool { return p.Title == LoginPageTitle }

// ParseAttendance builds the page model from raw HTML. year disambiguates the
// page's day-month date headings.
func ParseAttendance(body []byte, year int) (*AttendancePage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse attendance page: %w", err)
	}

	page := &AttendancePage{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		AccountName: strings.TrimSpace(doc.Find("span.side-menu-title.side-menu-name").First().Text()),
	}

	doc.Find("article.activity-line-item").Each(func(_ int, line *goquery.Selection) {
		date := strings.TrimSpace(line.Find("div.activity-line-date").First().Text())
		line.Find("section.activity-line-action").Each(func(_ int, sec *goquery.Selection) {
			page.Activities = append(page.Activities, parseActivity(sec, date, year))
		})
	})
	return page, nil
}

var statusClasses = map[string]AttendanceState{
	"activity-status-present":           AttendancePresent,
	"activity-status-absent-unapproved": AttendanceAbsent,
	"activity-status-undetermined":      AttendanceUnknown,
}

func parseActivity(sec *goquery.Selection, date string, year int) Activity {
	act := Activity{
		ActivityReference: ownText(sec.Find("div.cont-in").First()),
		AttendanceState:   AttendanceUnknown,
		Date:              formatActivityDate(date, year),
	}

	if window := strings.TrimSpace(sec.Find("div.time").First().Text()); window != "" {
		parts := strings.SplitN(window, " - ", 2)
		if len(parts) == 2 {
			act.StartTime = strings.TrimSpace(parts[0])
			act.FinishTime = strings.TrimSpace(parts[1])
		}
	}

	if classes, ok := sec.Find("div.activity-status").First().Attr("class"); ok {
		fields := strings.Fields(classes)
		if len(fields) > 0 {
			if state, ok := statusClasses[fields[len(fields)-1]]; ok {
				act.AttendanceState = state
			}
		}
	}

	meta := strings.TrimSpace(sec.Find("ul.meta li").First().Text())
	if meta != "" && meta != "Unknown Staff" {
		parts := strings.SplitN(meta, ",", 2)
		loc := strings.TrimSpace(parts[0])
		act.Location = &loc
		if len(parts) > 1 {
			lecturer := strings.TrimSpace(parts[1])
			act.LecturerName = &lecturer
		}
	}
	return act
}

// ownText returns the selection's direct text content, skipping child elements
// such as the meta list nested inside the activity container.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return strings.TrimSpace(b.String())
}

// formatActivityDate turns "Monday 17 February" plus a year into "2006-01-02".
// Returns nil when the heading cannot be parsed; the activity is still kept.
func formatActivityDate(date string, year int) *string {
	if date == "" {
		return nil
	}
	trimmed := date
	if parts := strings.SplitN(date, " ", 2); len(parts) > 1 {
		trimmed = parts[1]
	}
	parsed, err := time.Parse("2 January 2006", fmt.Sprintf("%s %d", trimmed, year))
	if err != nil {
		return nil
	}
	formatted := parsed.Format("2006-01-02")
	return &formatted
}
