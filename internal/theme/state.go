package theme

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State is the persisted rotation state: a cursor for round_robin and
// a recipient-to-index mapping for by_recipient. A missing state file
// means cursor 0 and an empty map.
type State struct {
	Cursor     int            `json:"rr_next"`
	Recipients map[string]int `json:"recipients,omitempty"`
}

func (s State) clone() State {
	out := State{Cursor: s.Cursor}
	if s.Recipients != nil {
		out.Recipients = make(map[string]int, len(s.Recipients))
		for k, v := range s.Recipients {
			out.Recipients[k] = v
		}
	}
	return out
}

// LoadState reads the rotation state file. Absence or corruption yields
// the zero state so a lost file only resets rotation, never the run.
func LoadState(path string) State {
	raw, err := os.ReadFile(path)
	if err != nil {
		return State{}
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}
	}
	return st
}

// SaveState persists the rotation state atomically (tmp then rename) so
// an interrupted write cannot leave a corrupt file behind.
func SaveState(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("theme: create state dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("theme: encode state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("theme: write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("theme: replace state: %w", err)
	}
	return nil
}
