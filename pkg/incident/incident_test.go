package incident

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"
)

var idPattern = regexp.MustCompile(`^INC-\d{8}-\d{4}$`)

func TestIDGenerator_FormatAndSequence(t *testing.T) {
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	g := NewIDGenerator(func() time.Time { return day })

	first, _ := g.Next()
	second, _ := g.Next()
	if first != "INC-20260314-0001" {
		t.Errorf("first = %q", first)
	}
	if second != "INC-20260314-0002" {
		t.Errorf("second = %q", second)
	}
	for _, id := range []string{first, second} {
		if !idPattern.MatchString(id) {
			t.Errorf("%q does not match %s", id, idPattern)
		}
	}
}

func TestIDGenerator_DayRollover(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.Local)
	g := NewIDGenerator(func() time.Time { return now })

	g.Next()
	g.Next()
	now = now.Add(2 * time.Minute)
	got, err := g.Next()
	if err != nil || got != "INC-20260315-0001" {
		t.Errorf("after rollover = %q, want INC-20260315-0001", got)
	}
}

func TestIDGenerator_SequenceExhausted(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	g := NewIDGenerator(func() time.Time { return now })

	var last string
	for i := 0; i < MaxDailySequence; i++ {
		id, err := g.Next()
		if err != nil {
			t.Fatalf("Next #%d: %v", i+1, err)
		}
		last = id
	}
	if last != "INC-20260314-9999" {
		t.Errorf("last = %q", last)
	}
	if id, err := g.Next(); !errors.Is(err, ErrSequenceExhausted) {
		t.Fatalf("Next after 9999 = %q, %v; want ErrSequenceExhausted", id, err)
	}

	now = now.Add(24 * time.Hour)
	if id, err := g.Next(); err != nil || id != "INC-20260315-0001" {
		t.Errorf("next day = %q, %v", id, err)
	}
}

func TestPhase_NextAndParse(t *testing.T) {
	p := PhaseDetection
	var walked []string
	for {
		walked = append(walked, p.String())
		next, ok := p.Next()
		if !ok {
			break
		}
		p = next
	}
	if len(walked) != 6 {
		t.Fatalf("walked %d phases, want 6: %v", len(walked), walked)
	}
	if p != PhaseLessonsLearned {
		t.Errorf("final phase = %s", p)
	}

	for _, name := range PhaseNames() {
		got, err := ParsePhase(name)
		if err != nil {
			t.Fatalf("ParsePhase(%q): %v", name, err)
		}
		if got.String() != name {
			t.Errorf("round trip %q -> %q", name, got)
		}
	}
	if _, err := ParsePhase("triage"); err == nil {
		t.Error("expected error for unknown phase")
	}
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDetected, StatusInvestigating, true},
		{StatusDetected, StatusContained, true},
		{StatusContained, StatusContained, true},
		{StatusContained, StatusInvestigating, false},
		{StatusClosed, StatusRecovered, false},
		{StatusRecovered, Status(42), false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		S Status `json:"s"`
		P Phase  `json:"p"`
	}{StatusEradicated, PhaseLessonsLearned})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"s":"eradicated","p":"lessons_learned"}` {
		t.Errorf("json = %s", data)
	}
}

func TestIncident_ExecutedIsASet(t *testing.T) {
	inc := New("INC-1", "t", "", "HIGH", "ransomware", []string{"a", "b", "a", ""}, nil, time.Now())
	if len(inc.AffectedAssets) != 2 {
		t.Errorf("assets = %v, want de-duplicated", inc.AffectedAssets)
	}
	if !inc.MarkExecuted("R1") {
		t.Error("first MarkExecuted should append")
	}
	if inc.MarkExecuted("R1") {
		t.Error("second MarkExecuted should be a no-op")
	}
	if len(inc.Executed) != 1 {
		t.Errorf("executed = %v", inc.Executed)
	}
	if !inc.DependenciesMet([]string{"R1"}) || inc.DependenciesMet([]string{"R1", "R2"}) {
		t.Error("DependenciesMet mismatch")
	}
}

func TestIncident_Targets(t *testing.T) {
	inc := New("INC-1", "t", "", "HIGH", "ransomware", []string{"host-1"},
		map[string][]string{"compromised_accounts": {"alice", "bob", "alice"}}, time.Now())

	if got := inc.Targets(RefAffectedAssets); len(got) != 1 || got[0] != "host-1" {
		t.Errorf("affected_assets = %v", got)
	}
	if got := inc.Targets(RefAllAssets); len(got) != 1 || got[0] != AllAssetsWildcard {
		t.Errorf("all_assets = %v", got)
	}
	if got := inc.Targets("compromised_accounts"); len(got) != 2 {
		t.Errorf("compromised_accounts = %v", got)
	}
	if got := inc.Targets("affected_networks"); len(got) != 0 {
		t.Errorf("missing indicator = %v, want empty", got)
	}
}

func TestSnapshot_IsDetached(t *testing.T) {
	inc := New("INC-1", "t", "", "HIGH", "ransomware", []string{"host-1"}, nil, time.Now())
	inc.MarkExecuted("R1")
	inc.Evidence = append(inc.Evidence, Evidence{Kind: "note", Data: map[string]any{"k": "v"}})

	snap := inc.Snapshot()
	inc.MarkExecuted("R2")
	inc.AffectedAssets[0] = "changed"
	inc.Evidence[0].Data["k"] = "changed"

	if len(snap.Executed) != 1 {
		t.Errorf("snapshot executed = %v", snap.Executed)
	}
	if snap.AffectedAssets[0] != "host-1" {
		t.Errorf("snapshot assets = %v", snap.AffectedAssets)
	}
	if snap.Evidence[0].Data["k"] != "v" {
		t.Errorf("snapshot evidence mutated: %v", snap.Evidence[0].Data)
	}
	if _, err := time.Parse(time.RFC3339, snap.DetectedAt); err != nil {
		t.Errorf("detected_at not ISO-8601: %v", err)
	}
}
