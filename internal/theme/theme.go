package theme

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Strategy picks how a theme is assigned to an outgoing email.
type Strategy string

const (
	StrategyRoundRobin  Strategy = "round_robin"
	StrategyRandom      Strategy = "random"
	StrategyByRecipient Strategy = "by_recipient"
)

// ErrNoThemes is returned when selection runs against an empty theme
// list. It is a configuration error, never an index fault.
var ErrNoThemes = errors.New("theme: no themes configured")

// ReplacePair is one literal substitution applied to the rendered HTML.
type ReplacePair struct {
	Old string
	New string
}

// ReplaceList is an ordered sequence of substitutions. It decodes from
// a JSON object but preserves the key order of the document, because
// later pairs may act on text introduced by earlier ones.
type ReplaceList []ReplacePair

func (r *ReplaceList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("theme: replace must be a JSON object, got %v", tok)
	}

	*r = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("theme: replace key is not a string: %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("theme: replace value for %q: %w", key, err)
		}
		*r = append(*r, ReplacePair{Old: key, New: val})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func (r ReplaceList) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range r {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(p.Old)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.New)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Theme is a named set of literal text substitutions that reskins the
// HTML template without structural changes.
type Theme struct {
	Name    string      `json:"name"`
	Replace ReplaceList `json:"replace"`
}

// Selection is the outcome of running a strategy once.
type Selection struct {
	Index int
	Theme Theme
	// State is the rotation state after this selection. The caller is
	// responsible for persisting it; the selector itself does no I/O.
	State State
}

// Select applies the given strategy. It is a pure function: the input
// state is not mutated, and all file handling stays at the caller.
func Select(strategy Strategy, recipient string, themes []Theme, state State) (Selection, error) {
	n := len(themes)
	if n == 0 {
		return Selection{}, ErrNoThemes
	}

	switch strategy {
	case StrategyRandom:
		idx := rand.Intn(n)
		return Selection{Index: idx, Theme: themes[idx], State: state}, nil

	case StrategyByRecipient:
		key := strings.ToLower(strings.TrimSpace(recipient))
		next := state.clone()
		if idx, ok := next.Recipients[key]; ok && idx >= 0 && idx < n {
			return Selection{Index: idx, Theme: themes[idx], State: next}, nil
		}
		idx := len(next.Recipients) % n
		if next.Recipients == nil {
			next.Recipients = map[string]int{}
		}
		next.Recipients[key] = idx
		return Selection{Index: idx, Theme: themes[idx], State: next}, nil

	case StrategyRoundRobin, "":
		idx := state.Cursor % n
		if idx < 0 {
			idx = 0
		}
		next := state.clone()
		next.Cursor = (idx + 1) % n
		return Selection{Index: idx, Theme: themes[idx], State: next}, nil

	default:
		return Selection{}, fmt.Errorf("theme: unknown strategy %q", strategy)
	}
}

// Apply performs the theme's substitutions in list order and returns
// the reskinned HTML. A nil replace list returns the input untouched.
func Apply(html string, t Theme) string {
	for _, p := range t.Replace {
		if p.Old == "" || p.Old == p.New {
			continue
		}
		html = strings.ReplaceAll(html, p.Old, p.New)
	}
	return html
}
