package portal

import "time"

// EventStatus is the self-registration state shown for an open event.
type EventStatus string

const (
	StatusPresent     EventStatus = "Present"
	StatusPresentLate EventStatus = "Present Late"
	StatusNotPresent  EventStatus = "NotPresent"
	StatusUnknown     EventStatus = "Unknown"
)

// CheckedIn reports whether the event needs no further submission.
func (s EventStatus) CheckedIn() bool {
	return s == StatusPresent || s == StatusPresentLate
}

// Event is one open activity parsed from the self-registration page.
// Events are transient; they are re-parsed on every refresh and never stored.
type Event struct {
	ID           string      `json:"id"`
	ActivityName string      `json:"activity"`
	Lecturer     string      `json:"lecturer,omitempty"`
	Space        string      `json:"space,omitempty"`
	StartTime    *time.Time  `json:"startTime,omitempty"`
	EndTime      *time.Time  `json:"endTime,omitempty"`
	Status       EventStatus `json:"status"`
}

// AttendanceState classifies a historical activity on the weekly attendance page.
type AttendanceState string

const (
	AttendancePresent AttendanceState = "present"
	AttendanceAbsent  AttendanceState = "absent"
	AttendanceUnknown AttendanceState = "unknown"
)

// Activity is one row of weekly attendance history. The JSON field names match
// the payload the CheckOut API expects on update-sync.
type Activity struct {
	ActivityReference string          `json:"activityReference"`
	Location          *string         `json:"location"`
	LecturerName      *string         `json:"lecturerName"`
	StartTime         string          `json:"startTime"`
	FinishTime        string          `json:"finishTime"`
	AttendanceState   AttendanceState `json:"attendanceState"`
	Date              *string         `json:"date"`
}
