package queue

import (
	"testing"
	"time"

	"beautybot/internal/models"
)

func app(id int, status models.ApplicationStatus, offset int) models.Application {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return models.Application{
		ID:        id,
		Status:    status,
		CreatedAt: base.Add(time.Duration(offset) * time.Minute),
	}
}

func positions(res Result) map[int]int {
	m := make(map[int]int)
	for _, a := range res.Assignments {
		m[a.ApplicationID] = a.Position
	}
	return m
}

func TestOrderSinglePrimaryThenReserve(t *testing.T) {
	apps := []models.Application{
		app(1, models.StatusApproved, 0),
		app(2, models.StatusPrimary, 1),
		app(3, models.StatusApproved, 2),
		app(4, models.StatusPending, 3),
	}
	res := Order(apps)

	if res.PrimaryID != 2 {
		t.Fatalf("PrimaryID = %d, want 2", res.PrimaryID)
	}
	if len(res.Demoted) != 0 {
		t.Fatalf("Demoted = %v, want none", res.Demoted)
	}
	pos := positions(res)
	want := map[int]int{2: 1, 1: 2, 3: 3, 4: 0}
	for id, p := range want {
		if pos[id] != p {
			t.Errorf("position of #%d = %d, want %d", id, pos[id], p)
		}
	}
}

func TestOrderDemotesDuplicatePrimaries(t *testing.T) {
	apps := []models.Application{
		app(1, models.StatusPrimary, 5),
		app(2, models.StatusPrimary, 1),
		app(3, models.StatusPrimary, 3),
	}
	res := Order(apps)

	if res.PrimaryID != 2 {
		t.Fatalf("PrimaryID = %d, want earliest-submitted 2", res.PrimaryID)
	}
	if len(res.Demoted) != 2 {
		t.Fatalf("Demoted = %v, want two entries", res.Demoted)
	}
	pos := positions(res)
	if pos[2] != 1 || pos[3] != 2 || pos[1] != 3 {
		t.Errorf("positions = %v, want 2→1, 3→2, 1→3", pos)
	}
}

func TestOrderNoPrimary(t *testing.T) {
	apps := []models.Application{
		app(1, models.StatusApproved, 1),
		app(2, models.StatusApproved, 0),
	}
	res := Order(apps)

	if res.PrimaryID != 0 {
		t.Fatalf("PrimaryID = %d, want 0", res.PrimaryID)
	}
	pos := positions(res)
	if pos[2] != 1 || pos[1] != 2 {
		t.Errorf("positions = %v, want 2→1, 1→2", pos)
	}
}

func TestOrderIdleStatusesGetZero(t *testing.T) {
	apps := []models.Application{
		app(1, models.StatusRejected, 0),
		app(2, models.StatusCancelled, 1),
		app(3, models.StatusPending, 2),
	}
	res := Order(apps)

	for _, a := range res.Assignments {
		if a.Position != 0 {
			t.Errorf("application #%d got position %d, want 0", a.ApplicationID, a.Position)
		}
	}
}

func TestOrderPositionsAreContiguous(t *testing.T) {
	apps := []models.Application{
		app(1, models.StatusPrimary, 0),
		app(2, models.StatusApproved, 1),
		app(3, models.StatusApproved, 2),
		app(4, models.StatusApproved, 3),
		app(5, models.StatusRejected, 4),
	}
	res := Order(apps)

	seen := make(map[int]bool)
	queued := 0
	for _, a := range res.Assignments {
		if a.Position == 0 {
			continue
		}
		queued++
		if seen[a.Position] {
			t.Fatalf("duplicate position %d", a.Position)
		}
		seen[a.Position] = true
	}
	for p := 1; p <= queued; p++ {
		if !seen[p] {
			t.Errorf("missing position %d in 1..%d", p, queued)
		}
	}
}

func TestOrderIdempotent(t *testing.T) {
	apps := []models.Application{
		app(1, models.StatusPrimary, 2),
		app(2, models.StatusPrimary, 0),
		app(3, models.StatusApproved, 1),
	}
	first := Order(apps)

	// Apply the demotions and positions, then recompute.
	demoted := make(map[int]bool)
	for _, id := range first.Demoted {
		demoted[id] = true
	}
	pos := positions(first)
	for i := range apps {
		if demoted[apps[i].ID] {
			apps[i].Status = models.StatusApproved
		}
		apps[i].Position = pos[apps[i].ID]
	}

	second := Order(apps)
	if second.PrimaryID != first.PrimaryID {
		t.Errorf("PrimaryID changed on recompute: %d then %d", first.PrimaryID, second.PrimaryID)
	}
	if len(second.Demoted) != 0 {
		t.Errorf("second pass demoted %v, want none", second.Demoted)
	}
	if got := positions(second); got[2] != pos[2] || got[1] != pos[1] || got[3] != pos[3] {
		t.Errorf("positions changed on recompute: %v then %v", pos, got)
	}
}

func TestOrderTieBreakByID(t *testing.T) {
	apps := []models.Application{
		app(7, models.StatusPrimary, 0),
		app(3, models.StatusPrimary, 0),
	}
	res := Order(apps)
	if res.PrimaryID != 3 {
		t.Fatalf("PrimaryID = %d, want lower id 3 on equal timestamps", res.PrimaryID)
	}
}

func TestNextPrimary(t *testing.T) {
	apps := []models.Application{
		app(1, models.StatusPending, 0),
		app(2, models.StatusApproved, 2),
		app(3, models.StatusApproved, 1),
		app(4, models.StatusRejected, 3),
	}
	next := NextPrimary(apps)
	if next == nil || next.ID != 3 {
		t.Fatalf("NextPrimary = %+v, want earliest approved #3", next)
	}
}

func TestNextPrimaryEmptyReserve(t *testing.T) {
	apps := []models.Application{
		app(1, models.StatusPending, 0),
		app(2, models.StatusRejected, 1),
	}
	if next := NextPrimary(apps); next != nil {
		t.Fatalf("NextPrimary = %+v, want nil", next)
	}
}
