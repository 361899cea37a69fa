package storage

import (
	"path/filepath"
	"sync"
	"testing"

	"beautybot/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestEvent(t *testing.T, s *Store) int {
	t.Helper()
	typeID, err := s.CreateProcedureType("Laser hair removal")
	if err != nil {
		t.Fatalf("create procedure type: %v", err)
	}
	id, err := s.CreateEvent(&models.Event{
		Date:            "2026-09-01",
		Time:            "10:00",
		ProcedureTypeID: typeID,
		ProcedureName:   "Laser hair removal",
		Status:          models.EventPublished,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return id
}

func createTestApplication(t *testing.T, s *Store, eventID int, userID int64, status models.ApplicationStatus) int {
	t.Helper()
	if err := s.EnsureUser(userID); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	id, err := s.CreateApplication(&models.Application{
		EventID:  eventID,
		UserID:   userID,
		FullName: "Test Candidate",
		Phone:    "+12025550100",
		Consent:  true,
		Status:   status,
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	return id
}

func TestGetEventNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetEvent(42); err != ErrNotFound {
		t.Fatalf("GetEvent(42) err = %v, want ErrNotFound", err)
	}
}

func TestSetApplicationStatusUnknownID(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetApplicationStatus(99, models.StatusApproved); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecalculatePositionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	eventID := createTestEvent(t, s)

	first := createTestApplication(t, s, eventID, 100, models.StatusPrimary)
	second := createTestApplication(t, s, eventID, 101, models.StatusApproved)
	third := createTestApplication(t, s, eventID, 102, models.StatusApproved)
	createTestApplication(t, s, eventID, 103, models.StatusPending)

	if err := s.RecalculatePositions(eventID); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	apps, err := s.ApplicationsByEvent(eventID)
	if err != nil {
		t.Fatalf("load applications: %v", err)
	}
	byID := make(map[int]models.Application)
	for _, app := range apps {
		byID[app.ID] = app
	}
	if byID[first].Position != 1 || byID[first].Status != models.StatusPrimary {
		t.Errorf("primary: position %d status %s", byID[first].Position, byID[first].Status)
	}
	if byID[second].Position != 2 || byID[third].Position != 3 {
		t.Errorf("reserve positions: %d, %d, want 2, 3", byID[second].Position, byID[third].Position)
	}
}

func TestRecalculatePositionsDemotesExtraPrimaries(t *testing.T) {
	s := newTestStore(t)
	eventID := createTestEvent(t, s)

	first := createTestApplication(t, s, eventID, 100, models.StatusPrimary)
	second := createTestApplication(t, s, eventID, 101, models.StatusPrimary)

	if err := s.RecalculatePositions(eventID); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	a1, _ := s.GetApplication(first)
	a2, _ := s.GetApplication(second)
	if a1.Status != models.StatusPrimary || a1.Position != 1 {
		t.Errorf("earliest primary: status %s position %d", a1.Status, a1.Position)
	}
	if a2.Status != models.StatusApproved || a2.Position != 2 {
		t.Errorf("demoted primary: status %s position %d, want approved at 2", a2.Status, a2.Position)
	}
}

func TestRecalculatePositionsUnknownEvent(t *testing.T) {
	s := newTestStore(t)
	if err := s.RecalculatePositions(12345); err != nil {
		t.Fatalf("recalculate on unknown event: %v, want no-op", err)
	}
}

func TestRecalculatePositionsConcurrent(t *testing.T) {
	s := newTestStore(t)
	eventID := createTestEvent(t, s)
	for i := 0; i < 5; i++ {
		createTestApplication(t, s, eventID, int64(200+i), models.StatusApproved)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RecalculatePositions(eventID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent recalculate: %v", err)
		}
	}

	apps, err := s.ApplicationsByEvent(eventID)
	if err != nil {
		t.Fatalf("load applications: %v", err)
	}
	seen := make(map[int]bool)
	for _, app := range apps {
		if app.Position < 1 || app.Position > 5 || seen[app.Position] {
			t.Fatalf("positions not a permutation of 1..5: %+v", apps)
		}
		seen[app.Position] = true
	}
}

func TestRecalculatePositionsRollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	eventID := createTestEvent(t, s)

	first := createTestApplication(t, s, eventID, 100, models.StatusApproved)
	second := createTestApplication(t, s, eventID, 101, models.StatusApproved)
	third := createTestApplication(t, s, eventID, 102, models.StatusApproved)
	if err := s.RecalculatePositions(eventID); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	// Positions are now 1, 2, 3. Make the second position write fail so the
	// batch dies after the first write went through.
	if _, err := s.db.Exec(`
		CREATE TRIGGER abort_second_write
		AFTER UPDATE OF position ON applications
		WHEN NEW.position = 2
		BEGIN SELECT RAISE(ABORT, 'write rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	// Rejecting the head would shift everyone up on the next recalculation.
	if err := s.SetApplicationStatus(first, models.StatusRejected); err != nil {
		t.Fatalf("reject head: %v", err)
	}
	if err := s.RecalculatePositions(eventID); err == nil {
		t.Fatal("recalculation succeeded past the failing write")
	}

	// The second application's move to position 1 happened before the failing
	// write; the rollback must leave no trace of it.
	if app, _ := s.GetApplication(second); app.Position != 2 {
		t.Errorf("second position = %d after rollback, want 2", app.Position)
	}
	if app, _ := s.GetApplication(third); app.Position != 3 {
		t.Errorf("third position = %d after rollback, want 3", app.Position)
	}
	if app, _ := s.GetApplication(first); app.Position != 1 {
		t.Errorf("rejected head position = %d after rollback, want 1", app.Position)
	}
}

func TestCorruptTimestampSurfacesError(t *testing.T) {
	s := newTestStore(t)
	eventID := createTestEvent(t, s)
	id := createTestApplication(t, s, eventID, 100, models.StatusPending)

	if _, err := s.db.Exec(`UPDATE applications SET created_at = 'garbage' WHERE id = ?`, id); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	if _, err := s.GetApplication(id); err == nil {
		t.Fatal("corrupt created_at read back without error")
	}
}

func TestGroupKeyStampsSharedMessage(t *testing.T) {
	s := newTestStore(t)
	e1 := createTestEvent(t, s)
	e2, err := s.CreateEvent(&models.Event{
		Date: "2026-09-02", Time: "11:00", ProcedureTypeID: 1,
		ProcedureName: "Laser hair removal", Status: models.EventPublished,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	if err := s.EnsureUser(100); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	for _, ev := range []int{e1, e2} {
		if _, err := s.CreateApplication(&models.Application{
			EventID: ev, UserID: 100, FullName: "Test Candidate",
			Phone: "+12025550100", Consent: true, GroupKey: "grp-1",
		}); err != nil {
			t.Fatalf("create application: %v", err)
		}
	}

	if err := s.SetGroupMessageForKey("grp-1", 777); err != nil {
		t.Fatalf("stamp group message: %v", err)
	}
	items, err := s.ApplicationsByGroupMessage(777)
	if err != nil {
		t.Fatalf("load by group message: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d applications for message 777, want 2", len(items))
	}
	for _, item := range items {
		if item.GroupMessageID != 777 {
			t.Errorf("application #%d group message = %d", item.ID, item.GroupMessageID)
		}
	}
}

func TestUserBlocking(t *testing.T) {
	s := newTestStore(t)
	if blocked, err := s.IsUserBlocked(55); err != nil || blocked {
		t.Fatalf("unknown user blocked = %v err = %v, want false", blocked, err)
	}
	if err := s.EnsureUser(55); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := s.BlockUser(55); err != nil {
		t.Fatalf("block user: %v", err)
	}
	blocked, err := s.IsUserBlocked(55)
	if err != nil || !blocked {
		t.Fatalf("blocked = %v err = %v, want true", blocked, err)
	}
}

func TestUserContactRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureUser(7); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	u, err := s.GetUser(7)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.HasContact() {
		t.Fatal("fresh user should have no contact data")
	}
	if err := s.UpdateUserContact(7, "Jane Doe", "+12025550123"); err != nil {
		t.Fatalf("update contact: %v", err)
	}
	u, err = s.GetUser(7)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !u.HasContact() || u.FullName != "Jane Doe" {
		t.Fatalf("contact not saved: %+v", u)
	}
}

func TestDayMessageLifecycle(t *testing.T) {
	s := newTestStore(t)
	const date = "2026-09-01"

	if id, err := s.DayMessageID(date); err != nil || id != 0 {
		t.Fatalf("empty lookup = %d, %v, want 0, nil", id, err)
	}
	if err := s.SetDayMessageID(date, 10); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetDayMessageID(date, 20); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if id, _ := s.DayMessageID(date); id != 20 {
		t.Fatalf("after upsert = %d, want 20", id)
	}
	if err := s.DeleteDayMessage(date); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if id, _ := s.DayMessageID(date); id != 0 {
		t.Fatalf("after delete = %d, want 0", id)
	}
}

func TestProcedureTypeDeleteInUseDeactivates(t *testing.T) {
	s := newTestStore(t)
	eventID := createTestEvent(t, s)
	ev, err := s.GetEvent(eventID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}

	deleted, err := s.DeleteProcedureType(ev.ProcedureTypeID)
	if err != nil {
		t.Fatalf("delete in-use type: %v", err)
	}
	if deleted {
		t.Fatal("in-use type was deleted, want deactivation")
	}
	pt, err := s.GetProcedureType(ev.ProcedureTypeID)
	if err != nil {
		t.Fatalf("type vanished: %v", err)
	}
	if pt.IsActive {
		t.Fatal("in-use type still active after delete request")
	}

	unused, err := s.CreateProcedureType("Tattoo removal")
	if err != nil {
		t.Fatalf("create type: %v", err)
	}
	deleted, err = s.DeleteProcedureType(unused)
	if err != nil || !deleted {
		t.Fatalf("delete unused type = %v, %v, want true, nil", deleted, err)
	}
}

func TestSeedProcedureTypesOnlyWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	if err := s.SeedProcedureTypes([]string{"A", "B"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.SeedProcedureTypes([]string{"C"}); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	types, err := s.AllProcedureTypes()
	if err != nil {
		t.Fatalf("load types: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("got %d types, want the original 2", len(types))
	}
}

func TestArchiveEventsBefore(t *testing.T) {
	s := newTestStore(t)
	typeID, err := s.CreateProcedureType("Laser hair removal")
	if err != nil {
		t.Fatalf("create type: %v", err)
	}
	old, _ := s.CreateEvent(&models.Event{
		Date: "2025-01-01", Time: "10:00", ProcedureTypeID: typeID,
		ProcedureName: "Laser hair removal", Status: models.EventPublished,
	})
	recent, _ := s.CreateEvent(&models.Event{
		Date: "2026-08-30", Time: "10:00", ProcedureTypeID: typeID,
		ProcedureName: "Laser hair removal", Status: models.EventPublished,
	})

	n, err := s.ArchiveEventsBefore("2026-03-01")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 1 {
		t.Fatalf("archived %d events, want 1", n)
	}
	if ev, _ := s.GetEvent(old); ev.Status != models.EventArchived {
		t.Errorf("old event status = %s, want archived", ev.Status)
	}
	if ev, _ := s.GetEvent(recent); ev.Status != models.EventPublished {
		t.Errorf("recent event status = %s, want published", ev.Status)
	}
}
