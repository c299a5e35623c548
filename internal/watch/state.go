package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// State describes a detached watcher process.
type State struct {
	PID        int       `json:"pid"`
	Dir        string    `json:"dir"`
	ConfigPath string    `json:"config_path,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Reloads    int       `json:"reloads"`
	LastReload time.Time `json:"last_reload,omitzero"`
}

// StateDir is where detached watchers record themselves:
// $XDG_STATE_HOME/support-context/watchers or ~/.local/state/...
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "support-context", "watchers")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "support-context", "watchers")
}

// StatePath returns the state file of one watcher.
func StatePath(pid int) string {
	return filepath.Join(StateDir(), fmt.Sprintf("%d.json", pid))
}

// SaveState writes s atomically.
func SaveState(s *State) error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp := StatePath(s.PID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, StatePath(s.PID))
}

// LoadState reads one watcher's state.
func LoadState(pid int) (*State, error) {
	data, err := os.ReadFile(StatePath(pid))
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", StatePath(pid), err)
	}
	return &s, nil
}

// ListStates returns live watchers ordered by PID. State files of dead
// processes are removed.
func ListStates() ([]*State, error) {
	entries, err := os.ReadDir(StateDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var states []*State
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(StateDir(), e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var s State
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		if !isProcessRunning(s.PID) {
			_ = os.Remove(path)
			continue
		}
		states = append(states, &s)
	}

	sort.Slice(states, func(i, j int) bool { return states[i].PID < states[j].PID })
	return states, nil
}

// RemoveState deletes a watcher's state file.
func RemoveState(pid int) error {
	err := os.Remove(StatePath(pid))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// StopAllDaemons stops every live detached watcher and returns how many
// were stopped.
func StopAllDaemons() (int, error) {
	states, err := ListStates()
	if err != nil {
		return 0, err
	}
	stopped := 0
	for _, s := range states {
		if err := StopDaemon(s.PID); err == nil {
			stopped++
		}
	}
	return stopped, nil
}

// daemonArgs re-runs the watch command in the foreground.
func daemonArgs(dir, configPath string) []string {
	args := []string{"watch", dir, "--foreground"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

func openDaemonLog() (*os.File, error) {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(StateDir(), "daemon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
