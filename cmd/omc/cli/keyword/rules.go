// Package keyword scans prompt text for tokens that should change how the
// agent runs: activating a mode, cancelling everything, or delegating to
// another engine. Detection is pure; callers decide what to do with the
// matches.
package keyword

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/omchq/omc/cmd/omc/cli/mode"
)

// Action is what a matched keyword asks for.
type Action string

const (
	ActionActivate Action = "activate"
	ActionCancel   Action = "cancel"
	ActionDelegate Action = "delegate"
)

// Rule is one compiled detection rule.
type Rule struct {
	ID       string
	Action   Action
	Mode     mode.Mode
	Target   string
	Keywords []string
}

// builtinRules is the default rule table in the same TOML shape accepted
// from a custom rules file. Mode names are their own keywords; the rest are
// aliases that grew out of day-to-day use.
const builtinRules = `title = "omc keyword rules"

[[rules]]
id = "autopilot"
action = "activate"
mode = "autopilot"
keywords = ["autopilot"]

[[rules]]
id = "swarm"
action = "activate"
mode = "swarm"
keywords = ["swarm"]

[[rules]]
id = "pipeline"
action = "activate"
mode = "pipeline"
keywords = ["pipeline"]

[[rules]]
id = "ralph"
action = "activate"
mode = "ralph"
keywords = ["ralph"]

[[rules]]
id = "ultrawork"
action = "activate"
mode = "ultrawork"
keywords = ["ultrawork", "ulw"]

[[rules]]
id = "team"
action = "activate"
mode = "team"
keywords = ["team"]

[[rules]]
id = "ultraqa"
action = "activate"
mode = "ultraqa"
keywords = ["ultraqa"]

[[rules]]
id = "cancel"
action = "cancel"
keywords = ["stopomc", "cancelomc"]

[[rules]]
id = "delegate-codex"
action = "delegate"
target = "codex"
keywords = ["gpt", "codex"]
`

// rulesConfig is the top-level structure of a rules TOML file.
type rulesConfig struct {
	Title string       `toml:"title"`
	Rules []ruleConfig `toml:"rules"`
}

type ruleConfig struct {
	ID       string   `toml:"id"`
	Action   string   `toml:"action"`
	Mode     string   `toml:"mode"`
	Target   string   `toml:"target"`
	Keywords []string `toml:"keywords"`
}

// ParseRules parses TOML bytes into compiled rules. Entries that do not
// describe a usable rule (unknown action, activate without a known mode,
// delegate without a target, no keywords) are skipped rather than causing a
// failure.
func ParseRules(data []byte) ([]Rule, error) {
	var cfg rulesConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing keyword rules: %w", err)
	}

	var compiled []Rule
	for _, rc := range cfg.Rules {
		if len(rc.Keywords) == 0 {
			continue
		}
		rule := Rule{ID: rc.ID, Target: rc.Target}
		switch Action(rc.Action) {
		case ActionActivate:
			m, err := mode.Parse(rc.Mode)
			if err != nil {
				continue
			}
			rule.Action = ActionActivate
			rule.Mode = m
		case ActionCancel:
			rule.Action = ActionCancel
		case ActionDelegate:
			if rc.Target == "" {
				continue
			}
			rule.Action = ActionDelegate
		default:
			continue
		}
		if rule.ID == "" {
			rule.ID = rc.Keywords[0]
		}
		// Lowercase all keywords for case-insensitive matching.
		for _, kw := range rc.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				rule.Keywords = append(rule.Keywords, kw)
			}
		}
		if len(rule.Keywords) == 0 {
			continue
		}
		compiled = append(compiled, rule)
	}
	return compiled, nil
}

// LoadRules reads and parses a custom rules file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from user config
	if err != nil {
		return nil, fmt.Errorf("reading keyword rules file: %w", err)
	}
	return ParseRules(data)
}

var (
	defaultDetector *Detector
	defaultOnce     sync.Once
)

// Default returns the detector built from the builtin rule table.
func Default() *Detector {
	defaultOnce.Do(func() {
		rules, err := ParseRules([]byte(builtinRules))
		if err != nil {
			// The builtin table is a compile-time constant; an empty
			// detector is the only sane degradation if it ever breaks.
			rules = nil
		}
		defaultDetector = NewDetector(rules)
	})
	return defaultDetector
}
