package trace

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestWriter_Emit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)

	if err := tw.Emit(EventStepStart, "INC-20261018-0001", map[string]any{"step_id": "R1"}); err != nil {
		t.Fatalf("Emit error: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("JSON unmarshal: %v (raw: %s)", err, buf.String())
	}
	if evt.Type != EventStepStart {
		t.Errorf("type = %q, want step_start", evt.Type)
	}
	if evt.IncidentID != "INC-20261018-0001" {
		t.Errorf("incident_id = %q", evt.IncidentID)
	}
	if evt.PrevHash != Genesis {
		t.Errorf("first prev_hash = %q, want genesis", evt.PrevHash)
	}
}

func TestNilWriter(t *testing.T) {
	var tw *Writer
	if err := tw.Emit(EventSweepStart, "x", nil); err != nil {
		t.Fatal(err)
	}
	if err := tw.Seal("k", ""); err != nil {
		t.Fatal(err)
	}
}

func TestVerify_ChainAndTamper(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	for _, e := range []EventType{EventIncidentCreated, EventSweepStart, EventStepStart, EventStepComplete, EventSweepComplete} {
		if err := tw.Emit(e, "INC-1", map[string]any{"n": string(e)}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := VerifyWithKey(bytes.NewReader(buf.Bytes()), "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.EventCount != 5 || res.BrokenAt != -1 {
		t.Fatalf("result = %+v", res)
	}
	if res.LastHash != tw.ChainHash() {
		t.Errorf("LastHash = %s, writer chain = %s", res.LastHash, tw.ChainHash())
	}

	tampered := strings.Replace(buf.String(), `"n":"step_start"`, `"n":"step_skipped"`, 1)
	res, err = VerifyWithKey(strings.NewReader(tampered), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.BrokenAt != 4 {
		t.Errorf("tampered result = %+v, want break at event 4", res)
	}
}

func TestSeal(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	tw.Emit(EventIncidentCreated, "INC-1", nil)
	if err := tw.Seal("secret", "k1"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key   string
		sigOK bool
		noKey bool
	}{
		{"secret", true, false},
		{"wrong", false, false},
		{"", false, true},
	}
	for _, tt := range tests {
		res, err := VerifyWithKey(bytes.NewReader(buf.Bytes()), tt.key)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Valid || !res.Sealed {
			t.Fatalf("result = %+v", res)
		}
		if res.SignatureOK != tt.sigOK || res.SignatureNoKey != tt.noKey {
			t.Errorf("key %q: SignatureOK=%v SignatureNoKey=%v", tt.key, res.SignatureOK, res.SignatureNoKey)
		}
		if res.SigningKeyID != "k1" {
			t.Errorf("SigningKeyID = %q", res.SigningKeyID)
		}
	}
}

func TestFileWriter_ContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")

	tw, err := NewFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	tw.Emit(EventIncidentCreated, "INC-1", nil)
	tw.Close()

	tw, err = NewFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	tw.Emit(EventIncidentClosed, "INC-1", nil)
	tw.Close()

	res, err := VerifyFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.EventCount != 2 {
		t.Errorf("result = %+v", res)
	}

	os.WriteFile(path, []byte(`{"type":"incident_created","prev_hash":"bogus"}`+"\n"), 0o644)
	if _, err := NewFileWriter(path); err == nil {
		t.Error("opening a broken trace should fail")
	}
}

func TestWriter_ConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tw.Emit(EventActionDispatched, "INC-1", map[string]any{"action": "scan_network"})
		}()
	}
	wg.Wait()

	res, err := VerifyWithKey(bytes.NewReader(buf.Bytes()), "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.EventCount != 20 {
		t.Errorf("result = %+v", res)
	}
}
