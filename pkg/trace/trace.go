// Package trace implements the engine's append-only, hash-chained JSONL
// audit trail.
package trace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventIncidentCreated  EventType = "incident_created"
	EventSweepStart       EventType = "sweep_start"
	EventStepStart        EventType = "step_start"
	EventActionDispatched EventType = "action_dispatched"
	EventStepComplete     EventType = "step_complete"
	EventSweepComplete    EventType = "sweep_complete"
	EventGateEvaluated    EventType = "gate_evaluated"
	EventPhaseAdvanced    EventType = "phase_advanced"
	EventStatusChanged    EventType = "status_changed"
	EventEvidenceAdded    EventType = "evidence_added"
	EventApprovalRecorded EventType = "approval_recorded"
	EventIncidentClosed   EventType = "incident_closed"
	EventTraceSealed      EventType = "trace_sealed"
)

// SigningKeyEnv names the environment variable holding the HMAC key used
// to seal and verify traces.
const SigningKeyEnv = "IRFLOW_TRACE_SIGNING_KEY"

// Genesis is the prev_hash of the first event in a trace.
var Genesis = strings.Repeat("0", 64)

// Event is a single trace event written to the JSONL stream. PrevHash is
// the SHA-256 of the previous line as written.
type Event struct {
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	IncidentID string         `json:"incident_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	PrevHash   string         `json:"prev_hash"`
}

// Writer writes trace events to an append-only JSONL stream. A nil *Writer
// discards events.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	prevHash string
	count    int
}

// NewWriter creates a trace writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, prevHash: Genesis}
}

// NewFileWriter creates a trace writer that appends to a JSONL file. An
// existing file must itself verify; the chain continues from its last line.
func NewFileWriter(path string) (*Writer, error) {
	prev := Genesis
	if f, err := os.Open(path); err == nil {
		res, verr := Verify(f)
		f.Close()
		if verr != nil {
			return nil, verr
		}
		if !res.Valid {
			return nil, fmt.Errorf("existing trace %s is broken: %s", path, res.Error)
		}
		prev = res.LastHash
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &Writer{w: f, closer: f, prevHash: prev}, nil
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, incidentID string, data map[string]any) error {
	if tw == nil {
		return nil
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		IncidentID: incidentID,
		Data:       data,
		PrevHash:   tw.prevHash,
	}
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if _, err := tw.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}
	h := sha256.Sum256(line)
	tw.prevHash = hex.EncodeToString(h[:])
	tw.count++
	return nil
}

// ChainHash returns the hash of the last written event.
func (tw *Writer) ChainHash() string {
	if tw == nil {
		return ""
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.prevHash
}

// Seal appends a trace_sealed event carrying the chain hash and, when key
// is non-empty, its HMAC-SHA256 signature.
func (tw *Writer) Seal(key, keyID string) error {
	if tw == nil {
		return nil
	}
	chain := tw.ChainHash()
	data := map[string]any{"chain_hash": chain}
	if key != "" {
		data["signature"] = sign(key, chain)
		if keyID != "" {
			data["signing_key_id"] = keyID
		}
	}
	return tw.Emit(EventTraceSealed, "", data)
}

// Close closes the underlying file, if the writer owns one.
func (tw *Writer) Close() error {
	if tw == nil || tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}

func sign(key, chain string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(chain))
	return hex.EncodeToString(mac.Sum(nil))
}
