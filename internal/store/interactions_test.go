package store

import (
	"testing"
	"time"

	"github.com/lazypower/rapport/internal/model"
)

func seedContact(t *testing.T, db *DB, id string) {
	t.Helper()
	if _, err := db.CreateContact(model.Contact{ID: id, Name: id}); err != nil {
		t.Fatalf("CreateContact(%s): %v", id, err)
	}
}

func TestAddInteraction(t *testing.T) {
	db := testDB(t)
	seedContact(t, db, "c1")

	dur := 45.0
	notes := "caught up over lunch"
	got, err := db.AddInteraction(model.Interaction{
		ContactID: "c1",
		Type:      model.InteractionMeeting,
		Timestamp: t0,
		Duration:  &dur,
		Notes:     &notes,
		Quality:   82,
	})
	if err != nil {
		t.Fatalf("AddInteraction: %v", err)
	}
	if got.ID == "" {
		t.Fatal("AddInteraction did not assign an id")
	}

	list, err := db.ListInteractions("c1")
	if err != nil {
		t.Fatalf("ListInteractions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	i := list[0]
	if i.Type != model.InteractionMeeting {
		t.Errorf("Type = %q, want meeting", i.Type)
	}
	if !i.Timestamp.Equal(t0) {
		t.Errorf("Timestamp = %v, want %v", i.Timestamp, t0)
	}
	if i.Duration == nil || *i.Duration != 45 {
		t.Errorf("Duration = %v, want 45", i.Duration)
	}
	if i.Notes == nil || *i.Notes != notes {
		t.Errorf("Notes = %v, want %q", i.Notes, notes)
	}
	if i.Quality != 82 {
		t.Errorf("Quality = %v, want 82", i.Quality)
	}
}

func TestAddInteractionRejectsUnknownType(t *testing.T) {
	db := testDB(t)
	seedContact(t, db, "c1")

	_, err := db.AddInteraction(model.Interaction{ContactID: "c1", Type: "fax", Timestamp: t0})
	if err == nil {
		t.Error("expected error for unknown type, got nil")
	}
}

func TestInteractionsByContact(t *testing.T) {
	db := testDB(t)
	seedContact(t, db, "a")
	seedContact(t, db, "b")

	add := func(contact string, at time.Time) {
		t.Helper()
		if _, err := db.AddInteraction(model.Interaction{ContactID: contact, Type: model.InteractionCall, Timestamp: at}); err != nil {
			t.Fatalf("AddInteraction: %v", err)
		}
	}
	add("a", t0.Add(2*time.Hour))
	add("a", t0)
	add("b", t0.Add(time.Hour))

	byContact, err := db.InteractionsByContact()
	if err != nil {
		t.Fatalf("InteractionsByContact: %v", err)
	}
	if len(byContact) != 2 {
		t.Fatalf("contacts = %d, want 2", len(byContact))
	}
	a := byContact["a"]
	if len(a) != 2 {
		t.Fatalf("a interactions = %d, want 2", len(a))
	}
	if !a[0].Timestamp.Before(a[1].Timestamp) {
		t.Errorf("a not ascending: %v then %v", a[0].Timestamp, a[1].Timestamp)
	}
	if len(byContact["b"]) != 1 {
		t.Errorf("b interactions = %d, want 1", len(byContact["b"]))
	}
}
