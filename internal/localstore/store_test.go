package localstore

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetSetDelete(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.Get(KeyDisplayName); err != nil || ok {
		t.Fatalf("Get() on empty store = ok=%v err=%v, want absent", ok, err)
	}

	if err := s.Set(KeyDisplayName, "Noman"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	got, ok, err := s.Get(KeyDisplayName)
	if err != nil || !ok || got != "Noman" {
		t.Fatalf("Get() = %q ok=%v err=%v, want Noman", got, ok, err)
	}

	// Overwrite replaces the value.
	if err := s.Set(KeyDisplayName, "Other"); err != nil {
		t.Fatalf("Set() overwrite failed: %v", err)
	}
	got, _, _ = s.Get(KeyDisplayName)
	if got != "Other" {
		t.Errorf("Get() after overwrite = %q, want Other", got)
	}

	if err := s.Delete(KeyDisplayName); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok, _ := s.Get(KeyDisplayName); ok {
		t.Error("Get() after Delete() still present")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	s := newTestStore(t)

	type payload struct {
		Name  string   `json:"name"`
		Items []string `json:"items"`
	}

	in := payload{Name: "budget", Items: []string{"a", "b"}}
	if err := s.SetJSON(KeySetup, in); err != nil {
		t.Fatalf("SetJSON() failed: %v", err)
	}

	var out payload
	ok, err := s.GetJSON(KeySetup, &out)
	if err != nil || !ok {
		t.Fatalf("GetJSON() = ok=%v err=%v", ok, err)
	}
	if out.Name != in.Name || len(out.Items) != 2 {
		t.Errorf("GetJSON() = %+v, want %+v", out, in)
	}

	// Absent key leaves the destination untouched.
	var untouched payload
	ok, err = s.GetJSON(KeyDebts, &untouched)
	if err != nil || ok {
		t.Fatalf("GetJSON() on absent key = ok=%v err=%v", ok, err)
	}
}

func TestRevisionMonotonic(t *testing.T) {
	s := newTestStore(t)

	rev, err := s.Revision()
	if err != nil || rev != 0 {
		t.Fatalf("Revision() on fresh store = %d err=%v, want 0", rev, err)
	}

	for want := int64(1); want <= 5; want++ {
		got, err := s.BumpRevision()
		if err != nil {
			t.Fatalf("BumpRevision() failed: %v", err)
		}
		if got != want {
			t.Errorf("BumpRevision() = %d, want %d", got, want)
		}
	}

	rev, _ = s.Revision()
	if rev != 5 {
		t.Errorf("Revision() = %d, want 5", rev)
	}
}

func TestDurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.Set(KeyDeviceID, "dev_abc"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if _, err := s.BumpRevision(); err != nil {
		t.Fatalf("BumpRevision() failed: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, ok, err := s2.Get(KeyDeviceID)
	if err != nil || !ok || got != "dev_abc" {
		t.Errorf("Get() after reopen = %q ok=%v err=%v", got, ok, err)
	}
	rev, _ := s2.Revision()
	if rev != 1 {
		t.Errorf("Revision() after reopen = %d, want 1", rev)
	}
}

func TestMigrate_SetupDefaults(t *testing.T) {
	s := newTestStore(t)

	// A v0 budget config without the later fields.
	if err := s.Set(KeySetup, `{"totalIncome":"50000","savingsGoal":"10000","setupDate":"2024-01-01T00:00:00Z"}`); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	var setup map[string]any
	if _, err := s.GetJSON(KeySetup, &setup); err != nil {
		t.Fatalf("GetJSON() failed: %v", err)
	}
	if v, ok := setup["autoAdjustSavings"].(bool); !ok || !v {
		t.Errorf("autoAdjustSavings = %v, want true", setup["autoAdjustSavings"])
	}
	if _, ok := setup["fixedExpenses"].([]any); !ok {
		t.Errorf("fixedExpenses = %v, want empty array", setup["fixedExpenses"])
	}

	version, _, err := s.Get(KeySchemaVersion)
	if err != nil {
		t.Fatalf("Get(schema version) failed: %v", err)
	}
	if version != "2" {
		t.Errorf("schema version = %q, want 2", version)
	}

	// Second run is a no-op.
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate() second run failed: %v", err)
	}
}

func TestMigrate_GoalKeyRename(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set("money_history_goal_name", "New Laptop"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	got, ok, _ := s.Get(KeyGoalName)
	if !ok || got != "New Laptop" {
		t.Errorf("goal after migrate = %q ok=%v, want New Laptop", got, ok)
	}
	if _, ok, _ := s.Get("money_history_goal_name"); ok {
		t.Error("legacy goal key still present after migrate")
	}
}
