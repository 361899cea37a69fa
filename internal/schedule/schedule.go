// Package schedule provides the slot calendar: selectable dates and times for
// new events and the retention cutoff for the archive sweep.
package schedule

import (
	"fmt"
	"time"

	"beautybot/internal/models"
)

// Slot generation bounds: 09:00 through 17:00 at 10-minute steps.
const (
	firstHour    = 9
	lastHour     = 17
	slotStepMins = 10
)

// DateOption is one selectable date for event creation.
type DateOption struct {
	Date    string // models.DateFormat
	Display string
}

// TimeSlots returns every selectable time of day.
func TimeSlots() []string {
	var slots []string
	for hour := firstHour; hour <= lastHour; hour++ {
		for minute := 0; minute < 60; minute += slotStepMins {
			if hour == lastHour && minute > 0 {
				break
			}
			slots = append(slots, fmt.Sprintf("%02d:%02d", hour, minute))
		}
	}
	return slots
}

// DateOptions returns the next days starting from now, today first.
func DateOptions(now time.Time, days int) []DateOption {
	options := make([]DateOption, 0, days)
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, i)
		display := fmt.Sprintf("%s, %02d.%02d", date.Weekday().String()[:3], date.Day(), int(date.Month()))
		if i == 0 {
			display = fmt.Sprintf("Today (%02d.%02d)", date.Day(), int(date.Month()))
		}
		options = append(options, DateOption{
			Date:    date.Format(models.DateFormat),
			Display: display,
		})
	}
	return options
}

// Today returns the current date in storage format.
func Today(now time.Time) string {
	return now.Format(models.DateFormat)
}

// RetentionCutoff returns the date before which published events are
// archived.
func RetentionCutoff(now time.Time, retentionDays int) string {
	return now.AddDate(0, 0, -retentionDays).Format(models.DateFormat)
}

// DisplayDate reformats a storage date for human output (DD.MM.YYYY).
func DisplayDate(date string) string {
	t, err := time.Parse(models.DateFormat, date)
	if err != nil {
		return date
	}
	return t.Format("02.01.2006")
}
