package bot

import "testing"

func TestDialogStateRoundTrip(t *testing.T) {
	dm := NewDialogManager()

	if state, _ := dm.GetState(1); state != NoDialog {
		t.Fatalf("fresh state = %v, want NoDialog", state)
	}

	dm.SetState(1, ApplyName, 42)
	state, eventID := dm.GetState(1)
	if state != ApplyName || eventID != 42 {
		t.Fatalf("state = %v eventID = %d", state, eventID)
	}

	// Moving on without an event keeps the stored target.
	dm.SetState(1, ApplyPhone, 0)
	if _, eventID := dm.GetState(1); eventID != 42 {
		t.Fatalf("eventID = %d after state change, want 42 kept", eventID)
	}

	dm.SetData(1, "full_name", "Jane Doe")
	if got := dm.GetData(1, "full_name"); got != "Jane Doe" {
		t.Fatalf("data = %q", got)
	}
	if got := dm.GetData(2, "full_name"); got != "" {
		t.Fatalf("other user's data = %q, want empty", got)
	}

	dm.Clear(1)
	if state, _ := dm.GetState(1); state != NoDialog {
		t.Fatalf("state after clear = %v", state)
	}
	if got := dm.GetData(1, "full_name"); got != "" {
		t.Fatalf("data after clear = %q", got)
	}
}

func TestDialogPhotos(t *testing.T) {
	dm := NewDialogManager()
	if n := dm.AddPhoto(1, "file-a"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	if n := dm.AddPhoto(1, "file-b"); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	photos := dm.Photos(1)
	if len(photos) != 2 || photos[0] != "file-a" || photos[1] != "file-b" {
		t.Fatalf("photos = %v", photos)
	}
	if photos := dm.Photos(2); photos != nil {
		t.Fatalf("other user's photos = %v", photos)
	}
}

func TestValidateName(t *testing.T) {
	cases := map[string]bool{
		"Jane Doe":       true,
		"  Jane   Doe  ": true,
		"Jane Ann Doe":   true,
		"Jane":           false,
		"":               false,
		"   ":            false,
	}
	for name, want := range cases {
		if got := ValidateName(name); got != want {
			t.Errorf("ValidateName(%q) = %v, want %v", name, got, want)
		}
	}
}
