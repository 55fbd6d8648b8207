package localstore

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CurrentSchemaVersion is the version new stores are stamped with.
const CurrentSchemaVersion = 2

// A migration upgrades the raw persisted form of one schema version to the
// next. Migrations run in order on open, each committing its writes before
// the version stamp advances.
type migration struct {
	to    int
	apply func(s *Store) error
}

var migrations = []migration{
	// v0 -> v1: early builds wrote the budget config without autoAdjustSavings
	// and fixedExpenses. Fill in the defaults the app assumed at read time.
	{to: 1, apply: migrateSetupDefaults},
	// v1 -> v2: the goal name moved from money_history_goal_name to
	// money_history_goal.
	{to: 2, apply: migrateGoalKey},
}

// Migrate brings the store up to CurrentSchemaVersion. Safe to call on every
// open; a store already at the current version is a no-op.
func (s *Store) Migrate() error {
	version, err := s.schemaVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if version >= m.to {
			continue
		}
		if err := m.apply(s); err != nil {
			return fmt.Errorf("migration to schema v%d failed: %w", m.to, err)
		}
		if err := s.Set(KeySchemaVersion, strconv.Itoa(m.to)); err != nil {
			return err
		}
		version = m.to
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	raw, ok, err := s.Get(KeySchemaVersion)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q: %w", raw, err)
	}
	return version, nil
}

func migrateSetupDefaults(s *Store) error {
	raw, ok, err := s.Get(KeySetup)
	if err != nil || !ok {
		return err
	}

	var setup map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &setup); err != nil {
		return fmt.Errorf("failed to decode budget config: %w", err)
	}

	changed := false
	if _, ok := setup["autoAdjustSavings"]; !ok {
		setup["autoAdjustSavings"] = json.RawMessage("true")
		changed = true
	}
	if _, ok := setup["fixedExpenses"]; !ok {
		setup["fixedExpenses"] = json.RawMessage("[]")
		changed = true
	}
	if !changed {
		return nil
	}
	return s.SetJSON(KeySetup, setup)
}

func migrateGoalKey(s *Store) error {
	const legacyKey = "money_history_goal_name"

	raw, ok, err := s.Get(legacyKey)
	if err != nil || !ok {
		return err
	}
	if _, exists, err := s.Get(KeyGoalName); err != nil || exists {
		return err
	}
	if err := s.Set(KeyGoalName, raw); err != nil {
		return err
	}
	return s.Delete(legacyKey)
}
