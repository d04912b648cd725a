package ordering

import (
	"sort"
	"testing"
)

func TestLess_HigherScoreRanksEarlier(t *testing.T) {
	a := Key{Score: 150, AchievedAtMs: 3, PlayerID: "c"}
	b := Key{Score: 100, AchievedAtMs: 1, PlayerID: "a"}
	if !Less(a, b) {
		t.Error("expected higher score to rank earlier")
	}
	if Less(b, a) {
		t.Error("expected lower score to rank later")
	}
}

func TestLess_EarlierTimestampBreaksTie(t *testing.T) {
	a := Key{Score: 100, AchievedAtMs: 1, PlayerID: "a"}
	b := Key{Score: 100, AchievedAtMs: 2, PlayerID: "b"}
	if !Less(a, b) {
		t.Error("expected earlier achiever to rank first on equal score")
	}
}

func TestLess_PlayerIDBreaksFullTie(t *testing.T) {
	a := Key{Score: 100, AchievedAtMs: 5, PlayerID: "alice"}
	b := Key{Score: 100, AchievedAtMs: 5, PlayerID: "bob"}
	if !Less(a, b) {
		t.Error("expected lower player id to rank first on full tie")
	}
}

func TestCompare_Antisymmetry(t *testing.T) {
	keys := []Key{
		{Score: 10, AchievedAtMs: 1, PlayerID: "x"},
		{Score: 10, AchievedAtMs: 1, PlayerID: "y"},
		{Score: 10, AchievedAtMs: 2, PlayerID: "x"},
		{Score: 20, AchievedAtMs: 9, PlayerID: "z"},
	}
	for _, a := range keys {
		for _, b := range keys {
			if Compare(a, b) != -Compare(b, a) {
				t.Fatalf("compare not antisymmetric for %v vs %v", a, b)
			}
		}
	}
	self := keys[0]
	if Compare(self, self) != 0 {
		t.Error("expected identical keys to compare equal")
	}
}

func TestSort_TieBreakScenario(t *testing.T) {
	// A scores 100 at t=1, B scores 100 at t=2, C scores 150 at t=3.
	keys := []Key{
		{Score: 100, AchievedAtMs: 2, PlayerID: "B"},
		{Score: 150, AchievedAtMs: 3, PlayerID: "C"},
		{Score: 100, AchievedAtMs: 1, PlayerID: "A"},
	}
	sort.Slice(keys, func(i, j int) bool { return Less(keys[i], keys[j]) })

	want := []string{"C", "A", "B"}
	for i, id := range want {
		if keys[i].PlayerID != id {
			t.Fatalf("position %d: expected %s, got %s", i+1, id, keys[i].PlayerID)
		}
	}
}
