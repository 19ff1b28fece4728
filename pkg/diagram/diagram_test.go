package diagram

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/playbook"
)

func TestGenerateMermaid_Ransomware(t *testing.T) {
	out, err := Generate("ransomware", playbook.Ransomware(), FormatMermaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"flowchart TD",
		"subgraph detection [detection]",
		"subgraph containment [containment]",
		"START([Incident]) --> R1",
		"R1 --> R2",
		"R2 --> R3",
		"✍ CISO, Infrastructure Manager",
		"style R1 stroke:#e60",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "subgraph eradication") {
		t.Error("empty phase rendered as subgraph")
	}
}

func TestGenerateMermaid_GuardsAndManual(t *testing.T) {
	steps := []playbook.Step{
		{ID: "a-1", Title: `Say "hi"`, Phase: incident.PhaseDetection},
		{ID: "a-2", Title: "Block", Phase: incident.PhaseContainment, Dependencies: []string{"a-1"},
			When:             `severity == "HIGH"`,
			AutomatedActions: []playbook.Action{{Name: playbook.ActionBlockIP, Target: playbook.Ref("malicious_ips")}}},
	}
	out, err := Generate("x", steps, FormatMermaid)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `a_1{{"🧑 a-1 Say #quot;hi#quot;"}}`) {
		t.Errorf("manual node not rendered as hexagon:\n%s", out)
	}
	if !strings.Contains(out, `a_1 -.->|"severity == #quot;HIGH#quot;"| a_2`) {
		t.Errorf("guarded edge missing:\n%s", out)
	}
}

func TestGenerateASCII(t *testing.T) {
	out, err := Generate("Account compromise", playbook.AccountCompromise(), FormatASCII)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Account compromise", "── detection ", "── lessons_learned ", "⚡ A1", "after A1"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	// Every box line has the same display width.
	width := -1
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "│" || !strings.HasPrefix(trimmed, "│") || !strings.HasSuffix(trimmed, "│") {
			continue
		}
		w := runewidth.StringWidth(trimmed)
		if width == -1 {
			width = w
		} else if w != width {
			t.Errorf("box line width %d != %d: %q", w, width, trimmed)
		}
	}
	if width == -1 {
		t.Error("no box lines rendered")
	}
}

func TestGenerate_Empty(t *testing.T) {
	out, _ := Generate("empty", nil, FormatASCII)
	if out != "empty (empty)\n" {
		t.Errorf("got %q", out)
	}
	out, _ = Generate("empty", nil, FormatMermaid)
	if out != "flowchart TD\n" {
		t.Errorf("got %q", out)
	}
}

func TestGenerate_UnsupportedFormat(t *testing.T) {
	if _, err := Generate("x", nil, Format("svg")); err == nil {
		t.Error("expected error for unsupported format")
	}
}
