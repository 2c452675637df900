package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selfRegistrationHTML = `<!DOCTYPE html>
<html>
<head>
<title>Check-In</title>
<meta name="csrf-token" content="csrf-abc-123">
</head>
<body>
<span class="side-menu-title side-menu-name">student@york.ac.uk</span>
<section class="box-typical box-typical-padding" data-activities-id="101">
  <div class="col-md-4">09:00 - 10:30</div>
  <div class="col-md-4">Algorithms and Data Structures</div>
  <div class="col-md-4">Dr Jones</div>
  <div class="col-md-4">CSE/082</div>
  <div class="selfregistration_status"><button class="btn btn-default">Register my attendance</button></div>
</section>
<section class="box-typical box-typical-padding" data-activities-id="102">
  <div class="col-md-4">11:00 - 12:00</div>
  <div class="col-md-4">Databases</div>
  <div class="col-md-4">Dr Smith</div>
  <div class="col-md-4">CSE/102</div>
  <div class="selfregistration_status hidden"><button class="btn btn-default">Register my attendance</button></div>
  <div class="selfregistration_status"><div class="widget-simple-sm-bottom">Present</div></div>
</section>
</body>
</html>`

const loginHTML = `<html><head><title>Please log in to continue...</title></head><body></body></html>`

const noActivityHTML = `<html>
<head><title>Check-In</title><meta name="csrf-token" content="csrf-abc-123"></head>
<body>
<span class="side-menu-title side-menu-name">student@york.ac.uk</span>
<section class="box-typical box-typical-padding">
  There is currently no activity for which you can register yourself.
</section>
</body></html>`

func TestParseSelfRegistration(t *testing.T) {
	now := time.Date(2026, 2, 17, 8, 0, 0, 0, time.UTC)
	page, err := ParseSelfRegistration([]byte(selfRegistrationHTML), now)
	require.NoError(t, err)

	assert.False(t, page.IsLogin())
	assert.Equal(t, CheckInPageTitle, page.Title)
	assert.Equal(t, "student@york.ac.uk", page.AccountName)
	assert.Equal(t, "csrf-abc-123", page.CSRFToken)
	require.Len(t, page.Events, 2)

	open := page.Events[0]
	assert.Equal(t, "101", open.ID)
	assert.Equal(t, "Algorithms and Data Structures", open.ActivityName)
	assert.Equal(t, "Dr Jones", open.Lecturer)
	assert.Equal(t, "CSE/082", open.Space)
	assert.Equal(t, StatusNotPresent, open.Status)
	require.NotNil(t, open.StartTime)
	require.NotNil(t, open.EndTime)
	assert.Equal(t, time.Date(2026, 2, 17, 9, 0, 0, 0, time.UTC), *open.StartTime)
	assert.Equal(t, time.Date(2026, 2, 17, 10, 30, 0, 0, time.UTC), *open.EndTime)

	done := page.Events[1]
	assert.Equal(t, "102", done.ID)
	assert.Equal(t, StatusPresent, done.Status)
	assert.True(t, done.Status.CheckedIn())
}

func TestParseSelfRegistrationLoginPage(t *testing.T) {
	page, err := ParseSelfRegistration([]byte(loginHTML), time.Now())
	require.NoError(t, err)
	assert.True(t, page.IsLogin())
	assert.Empty(t, page.Events)
}

func TestParseSelfRegistrationNoActivity(t *testing.T) {
	page, err := ParseSelfRegistration([]byte(noActivityHTML), time.Now())
	require.NoError(t, err)
	assert.False(t, page.IsLogin())
	assert.Empty(t, page.Events)
}

const attendanceHTML = `<!DOCTYPE html>
<html>
<head><title>Attendance</title></head>
<body>
<span class="side-menu-title side-menu-name">student@york.ac.uk</span>
<article class="activity-line-item">
  <div class="activity-line-date">Monday 16 February</div>
  <section class="activity-line-action">
    <div class="time">09:00 - 10:30</div>
    <div class="cont-in">LEC-ALG-01<ul class="meta"><li>CSE/082, Dr Jones</li></ul></div>
    <div class="activity-status activity-status-present"></div>
  </section>
  <section class="activity-line-action">
    <div class="time">13:00 - 14:00</div>
    <div class="cont-in">PRA-DB-02<ul class="meta"><li>Unknown Staff</li></ul></div>
    <div class="activity-status activity-status-absent-unapproved"></div>
  </section>
</article>
</body>
</html>`

func TestParseAttendance(t *testing.T) {
	page, err := ParseAttendance([]byte(attendanceHTML), 2026)
	require.NoError(t, err)

	assert.False(t, page.IsLogin())
	assert.Equal(t, "student@york.ac.uk", page.AccountName)
	require.Len(t, page.Activities, 2)

	present := page.Activities[0]
	assert.Equal(t, "LEC-ALG-01", present.ActivityReference)
	assert.Equal(t, "09:00", present.StartTime)
	assert.Equal(t, "10:30", present.FinishTime)
	assert.Equal(t, AttendancePresent, present.AttendanceState)
	require.NotNil(t, present.Date)
	assert.Equal(t, "2026-02-16", *present.Date)
	require.NotNil(t, present.Location)
	assert.Equal(t, "CSE/082", *present.Location)
	require.NotNil(t, present.LecturerName)
	assert.Equal(t, "Dr Jones", *present.LecturerName)

	absent := page.Activities[1]
	assert.Equal(t, "PRA-DB-02", absent.ActivityReference)
	assert.Equal(t, AttendanceAbsent, absent.AttendanceState)
	// "Unknown Staff" carries no location or lecturer.
	assert.Nil(t, absent.Location)
	assert.Nil(t, absent.LecturerName)
}

func TestFormatActivityDate(t *testing.T) {
	got := formatActivityDate("Monday 16 February", 2026)
	require.NotNil(t, got)
	assert.Equal(t, "2026-02-16", *got)

	assert.Nil(t, formatActivityDate("", 2026))
	assert.Nil(t, formatActivityDate("not a date heading", 2026))
}

func TestEventStatusCheckedIn(t *testing.T) {
	assert.True(t, StatusPresent.CheckedIn())
	assert.True(t, StatusPresentLate.CheckedIn())
	assert.False(t, StatusNotPresent.CheckedIn())
	assert.False(t, StatusUnknown.CheckedIn())
}
