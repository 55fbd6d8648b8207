package sync

import "testing"

func TestGuardCheck(t *testing.T) {
	tests := []struct {
		name           string
		cachedRev      int64
		cachedCount    int
		storeRev       int64
		freshCount     int
		lastSynced     int
		want           Verdict
	}{
		{"in step", 5, 3, 5, 3, 3, VerdictProceed},
		{"store revision moved", 5, 3, 6, 3, 3, VerdictRehydrate},
		{"store grew", 5, 3, 5, 4, 3, VerdictRehydrate},
		{"edit without count change", 5, 3, 7, 3, 3, VerdictRehydrate},
		{"empty over non-empty", 5, 0, 5, 0, 3, VerdictRefuseEmpty},
		{"empty but never synced", 0, 0, 0, 0, 0, VerdictProceed},
		{"shrunk locally", 5, 3, 5, 2, 3, VerdictProceed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Guard{}
			g.Observe(tt.cachedRev, tt.cachedCount)
			if got := g.Check(tt.storeRev, tt.freshCount, tt.lastSynced); got != tt.want {
				t.Errorf("Check() = %s, want %s", got, tt.want)
			}
		})
	}
}

// After rehydration the cached view must equal the persisted view, so a
// stale sync can never shrink the data.
func TestGuardRehydrationCatchesUp(t *testing.T) {
	g := &Guard{}
	g.Observe(1, 2)

	if v := g.Check(4, 7, 2); v != VerdictRehydrate {
		t.Fatalf("Check() = %s, want rehydrate", v)
	}
	g.Observe(4, 7)

	rev, count := g.View()
	if rev != 4 || count != 7 {
		t.Errorf("View() = (%d, %d), want (4, 7)", rev, count)
	}
	if v := g.Check(4, 7, 7); v != VerdictProceed {
		t.Errorf("Check() after rehydration = %s, want proceed", v)
	}
}
