package trace

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// VerifyResult is the outcome of verifying a trace file.
type VerifyResult struct {
	EventCount     int    `json:"event_count"`
	Valid          bool   `json:"valid"`
	BrokenAt       int    `json:"broken_at"` // -1 if no break
	Sealed         bool   `json:"sealed"`
	Signed         bool   `json:"signed"`
	SignatureOK    bool   `json:"signature_ok"`
	SignatureNoKey bool   `json:"signature_no_key"` // signature present but no key to verify
	SigningKeyID   string `json:"signing_key_id,omitempty"`
	LastHash       string `json:"last_hash"`
	Error          string `json:"error,omitempty"`
}

// VerifyFile verifies the hash chain and optional signature of a trace file.
func VerifyFile(path string) (*VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	return Verify(f)
}

// Verify checks hash chain integrity and, for sealed traces, the HMAC
// signature using the key in SigningKeyEnv.
func Verify(r io.Reader) (*VerifyResult, error) {
	return VerifyWithKey(r, os.Getenv(SigningKeyEnv))
}

// VerifyWithKey is Verify with an explicit signing key.
func VerifyWithKey(r io.Reader, key string) (*VerifyResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB max line

	expected := Genesis
	count := 0
	var last Event

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		count++

		var evt Event
		if err := json.Unmarshal(line, &evt); err != nil {
			return broken(count, expected, "event %d: invalid JSON: %v", count, err), nil
		}
		if evt.PrevHash != expected {
			return broken(count, expected, "event %d: prev_hash mismatch (expected %s, got %s)",
				count, short(expected), short(evt.PrevHash)), nil
		}

		h := sha256.Sum256(line)
		expected = hex.EncodeToString(h[:])
		last = evt
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	result := &VerifyResult{EventCount: count, Valid: true, BrokenAt: -1, LastHash: expected}

	if last.Type == EventTraceSealed {
		result.Sealed = true
		chain, _ := last.Data["chain_hash"].(string)
		if chain != last.PrevHash {
			result.Valid = false
			result.BrokenAt = count
			result.Error = "seal chain_hash does not match the chain"
			return result, nil
		}
		if sig, ok := last.Data["signature"].(string); ok {
			result.Signed = true
			result.SigningKeyID, _ = last.Data["signing_key_id"].(string)
			if key == "" {
				result.SignatureNoKey = true
			} else {
				result.SignatureOK = hmac.Equal([]byte(sig), []byte(sign(key, chain)))
			}
		}
	}
	return result, nil
}

func broken(at int, lastHash, format string, args ...any) *VerifyResult {
	return &VerifyResult{
		EventCount: at,
		Valid:      false,
		BrokenAt:   at,
		LastHash:   lastHash,
		Error:      fmt.Sprintf(format, args...),
	}
}

func short(h string) string {
	if len(h) > 16 {
		return h[:16] + "..."
	}
	return h
}
