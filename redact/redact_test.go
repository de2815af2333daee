package redact

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// highEntropySecret has Shannon entropy above the threshold and triggers
// entropy-based redaction regardless of pattern rules.
const highEntropySecret = "sk-ant-REDACTED"

func TestString_NoSecrets(t *testing.T) {
	t.Parallel()

	input := "hello world, this is normal text"
	if got := String(input); got != input {
		t.Errorf("String() = %q, want unchanged input", got)
	}
}

func TestString_HighEntropyToken(t *testing.T) {
	t.Parallel()

	got := String("my key is " + highEntropySecret + " ok")
	want := "my key is " + Mask + " ok"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestString_KnownPattern(t *testing.T) {
	t.Parallel()

	// A GitHub PAT shape whose entropy sits below our 4.5 threshold, so
	// only the pattern rules can catch it.
	token := "ghp_" + strings.Repeat("abcdefghij012345", 2) + "abcd"
	got := String("token: " + token)
	if strings.Contains(got, token) {
		t.Errorf("String() left a known token shape intact: %q", got)
	}
	if !strings.Contains(got, Mask) {
		t.Errorf("String() = %q, want a masked span", got)
	}
}

func TestString_AdjacentSecretsMerge(t *testing.T) {
	t.Parallel()

	got := String(highEntropySecret + " and " + highEntropySecret)
	want := Mask + " and " + Mask
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBytes_ReturnsSameSliceWhenClean(t *testing.T) {
	t.Parallel()

	input := []byte("nothing secret here")
	result := Bytes(input)
	if !bytes.Equal(result, input) {
		t.Errorf("Bytes() = %q, want unchanged", result)
	}
	if &result[0] != &input[0] {
		t.Error("Bytes() should return the original slice when nothing changed")
	}
}

func TestJSON_RedactsNestedValues(t *testing.T) {
	t.Parallel()

	input := json.RawMessage(`{"step":{"notes":"see ` + highEntropySecret + ` above"},"count":3}`)
	out := JSON(input)

	var parsed struct {
		Step struct {
			Notes string `json:"notes"`
		} `json:"step"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if parsed.Step.Notes != "see "+Mask+" above" {
		t.Errorf("notes = %q, want masked value", parsed.Step.Notes)
	}
	if parsed.Count != 3 {
		t.Errorf("count = %d, want 3 (non-strings untouched)", parsed.Count)
	}
}

func TestJSON_PreservesIdentifierFields(t *testing.T) {
	t.Parallel()

	sessionID := highEntropySecret + "-session"
	input := json.RawMessage(`{"session_id":"` + sessionID + `","intent":"` + highEntropySecret + `"}`)
	out := JSON(input)

	var parsed map[string]string
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if parsed["session_id"] != sessionID {
		t.Errorf("session_id = %q, want preserved", parsed["session_id"])
	}
	if parsed["intent"] != Mask {
		t.Errorf("intent = %q, want %q", parsed["intent"], Mask)
	}
}

func TestJSON_SkipsImagePayloads(t *testing.T) {
	t.Parallel()

	input := json.RawMessage(`{"type":"image","data":"` + highEntropySecret + `"}`)
	out := JSON(input)
	if string(out) != string(input) {
		t.Errorf("JSON() = %s, want image object untouched", out)
	}
}

func TestJSON_CleanDocumentUnchanged(t *testing.T) {
	t.Parallel()

	input := json.RawMessage(`{"workflow":"release","step":2,"total_steps":5,"status":"running"}`)
	out := JSON(input)
	if string(out) != string(input) {
		t.Errorf("JSON() = %s, want byte-identical document", out)
	}
}

func TestJSON_InvalidContentPassesThrough(t *testing.T) {
	t.Parallel()

	input := json.RawMessage(`{broken`)
	out := JSON(input)
	if string(out) != string(input) {
		t.Errorf("JSON() = %s, want unparseable content unchanged", out)
	}

	if out := JSON(nil); out != nil {
		t.Errorf("JSON(nil) = %s, want nil", out)
	}
}
