package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	id "kycflow/pkg/domain"
)

// state is what kycctl remembers between invocations: the step each role's
// wizard was last on. Answers live on the server.
type state struct {
	Steps map[id.Role]int `json:"steps"`
}

func loadState(fsys afero.Fs, path string) (*state, error) {
	st := &state{Steps: map[id.Role]int{}}
	b, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	if st.Steps == nil {
		st.Steps = map[id.Role]int{}
	}
	return st, nil
}

// save writes through a temp file so an interrupted run never leaves a
// truncated state file.
func (s *state) save(fsys afero.Fs, path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fsys, tmp, b, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
