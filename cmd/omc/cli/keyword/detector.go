package keyword

import (
	"regexp"
	"strings"

	"github.com/omchq/omc/cmd/omc/cli/mode"
)

// Match is one keyword hit in a prompt.
type Match struct {
	Keyword string
	RuleID  string
	Action  Action
	Mode    mode.Mode
	Target  string
}

// Detector matches prompt tokens against a rule table.
type Detector struct {
	rules   []Rule
	byToken map[string]int
}

// NewDetector compiles rules into a detector. When two rules claim the same
// keyword the earlier rule keeps it.
func NewDetector(rules []Rule) *Detector {
	d := &Detector{rules: rules, byToken: make(map[string]int)}
	for i, rule := range rules {
		for _, kw := range rule.Keywords {
			if _, taken := d.byToken[kw]; !taken {
				d.byToken[kw] = i
			}
		}
	}
	return d
}

var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// Detect scans prompt for rule keywords and returns the matches in order of
// first appearance, at most one per rule. Matching is case-insensitive and
// on whole tokens only, so "chatgpt" does not hit the "gpt" keyword. Spans
// inside fenced code blocks are ignored; a keyword quoted as an example must
// not trigger.
func (d *Detector) Detect(prompt string) []Match {
	if prompt == "" || len(d.rules) == 0 {
		return nil
	}
	text := strings.ToLower(maskFenced(prompt))

	var matches []Match
	seen := make(map[int]bool)
	for _, token := range wordPattern.FindAllString(text, -1) {
		idx, ok := d.byToken[token]
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		rule := d.rules[idx]
		matches = append(matches, Match{
			Keyword: token,
			RuleID:  rule.ID,
			Action:  rule.Action,
			Mode:    rule.Mode,
			Target:  rule.Target,
		})
	}
	return matches
}

// maskFenced blanks out paired triple-backtick regions, fences included. An
// unterminated fence masks through the end of the prompt, which errs on the
// side of not triggering on half-pasted code.
func maskFenced(s string) string {
	out := []byte(s)
	base := 0
	for {
		open := strings.Index(s[base:], "```")
		if open < 0 {
			break
		}
		start := base + open
		end := len(s)
		if close := strings.Index(s[start+3:], "```"); close >= 0 {
			end = start + 3 + close + 3
		}
		for i := start; i < end; i++ {
			out[i] = ' '
		}
		if end == len(s) {
			break
		}
		base = end
	}
	return string(out)
}
