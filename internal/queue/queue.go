// Package queue computes the canonical ordering of an event's applications:
// a single primary at position 1 followed by the approved reserve in
// submission order. It is pure computation; persistence of the result is the
// storage layer's job.
package queue

import (
	"sort"

	"beautybot/internal/models"
)

// Assignment is one position write to persist.
type Assignment struct {
	ApplicationID int
	Position      int
}

// Result is the normalized queue for one event.
type Result struct {
	// PrimaryID is the application holding the primary slot, 0 if none.
	PrimaryID int
	// Demoted lists applications that claimed primary but lost the
	// first-submitted-wins tie-break; they must be persisted as approved.
	Demoted []int
	// Assignments holds the position for every application, including the
	// zeroes for statuses outside the queue.
	Assignments []Assignment
}

// Order normalizes the queue for the given applications, which must all
// belong to the same event. Duplicate primaries are never an error: the
// earliest by submission time keeps the slot, the rest drop back into the
// reserve. Positions run 1..k over primary plus approved, everything else
// gets 0.
func Order(apps []models.Application) Result {
	sorted := make([]models.Application, len(apps))
	copy(sorted, apps)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var res Result
	var reserve []int
	var idle []int

	for _, app := range sorted {
		switch app.Status {
		case models.StatusPrimary:
			if res.PrimaryID == 0 {
				res.PrimaryID = app.ID
			} else {
				res.Demoted = append(res.Demoted, app.ID)
				reserve = append(reserve, app.ID)
			}
		case models.StatusApproved:
			reserve = append(reserve, app.ID)
		default:
			idle = append(idle, app.ID)
		}
	}

	pos := 1
	if res.PrimaryID != 0 {
		res.Assignments = append(res.Assignments, Assignment{res.PrimaryID, pos})
		pos++
	}
	for _, id := range reserve {
		res.Assignments = append(res.Assignments, Assignment{id, pos})
		pos++
	}
	for _, id := range idle {
		res.Assignments = append(res.Assignments, Assignment{id, 0})
	}

	return res
}

// NextPrimary picks the application to auto-promote after the primary slot
// was vacated: the earliest approved application by submission time, or nil
// when the reserve is empty.
func NextPrimary(apps []models.Application) *models.Application {
	var best *models.Application
	for i := range apps {
		app := &apps[i]
		if app.Status != models.StatusApproved {
			continue
		}
		if best == nil || app.CreatedAt.Before(best.CreatedAt) ||
			(app.CreatedAt.Equal(best.CreatedAt) && app.ID < best.ID) {
			best = app
		}
	}
	return best
}
