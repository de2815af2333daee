// Package redact masks secrets in content before it is persisted. The
// checkpoint files embed opaque documents owned by the host (workflow state,
// memory context), and whatever those happen to contain must not leak
// credentials into the state directory. Detection is layered: entropy
// scanning catches unknown token formats, gitleaks' rule base catches known
// ones. A value is redacted if either method flags it.
package redact

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Mask replaces every detected secret.
const Mask = "REDACTED"

// secretPattern matches candidate spans for entropy scoring.
var secretPattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the minimum Shannon entropy for a candidate span to
// count as a secret. 4.5 sits above common words and identifiers but below
// typical API keys, which score well over 5.0.
const entropyThreshold = 4.5

var (
	detector     *detect.Detector
	detectorOnce sync.Once
)

func getDetector() *detect.Detector {
	detectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			// Entropy-only detection still runs.
			return
		}
		detector = d
	})
	return detector
}

type region struct{ start, end int }

// String replaces secrets in s with the mask.
func String(s string) string {
	var regions []region

	for _, loc := range secretPattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			regions = append(regions, region{loc[0], loc[1]})
		}
	}

	if d := getDetector(); d != nil {
		for _, finding := range d.DetectString(s) {
			if finding.Secret == "" {
				continue
			}
			from := 0
			for {
				idx := strings.Index(s[from:], finding.Secret)
				if idx < 0 {
					break
				}
				start := from + idx
				regions = append(regions, region{start, start + len(finding.Secret)})
				from = start + len(finding.Secret)
			}
		}
	}

	if len(regions) == 0 {
		return s
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })
	merged := []region{regions[0]}
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
		} else {
			merged = append(merged, r)
		}
	}

	var b strings.Builder
	prev := 0
	for _, r := range merged {
		b.WriteString(s[prev:r.start])
		b.WriteString(Mask)
		prev = r.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// Bytes is a convenience wrapper around String for []byte content.
func Bytes(b []byte) []byte {
	s := string(b)
	redacted := String(s)
	if redacted == s {
		return b
	}
	return []byte(redacted)
}

// JSON redacts string values inside a JSON document and returns the result
// re-encoded compactly. Identifier fields (keys ending in "id"/"ids", plus
// "signature") and image payload objects are left alone. Content that does
// not parse as JSON is returned unchanged; masking is best-effort and must
// never be the reason a snapshot fails.
func JSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return raw
	}
	changed := false
	redacted := redactValue(parsed, &changed)
	if !changed {
		return raw
	}
	out, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return out
}

func redactValue(v any, changed *bool) any {
	switch val := v.(type) {
	case map[string]any:
		if skipObject(val) {
			return val
		}
		out := make(map[string]any, len(val))
		for key, child := range val {
			if skipField(key) {
				out[key] = child
				continue
			}
			out[key] = redactValue(child, changed)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = redactValue(child, changed)
		}
		return out
	case string:
		redacted := String(val)
		if redacted != val {
			*changed = true
		}
		return redacted
	default:
		return val
	}
}

// skipField reports whether a JSON key is an identifier rather than user
// content. Session and agent ids are high-entropy by construction and must
// survive redaction, or the files stop correlating.
func skipField(key string) bool {
	if key == "signature" {
		return true
	}
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, "id") || strings.HasSuffix(lower, "ids")
}

// skipObject reports whether an object is an image payload, which is binary
// data that entropy scanning would shred to no benefit.
func skipObject(obj map[string]any) bool {
	t, ok := obj["type"].(string)
	return ok && (strings.HasPrefix(t, "image") || t == "base64")
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := range len(s) {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
