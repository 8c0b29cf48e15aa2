package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PromptManager loads prompt overrides from a directory:
//
//	<dir>/shared/*.md     appended to every stage, in a fixed order
//	<dir>/stages/<id>.md  replaces the instructions of stage <id>
//
// A missing directory means no overrides.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// sharedOrder pins well-known fragments first; anything else follows by name.
var sharedOrder = map[string]int{
	"identity.md": 1,
	"safety.md":   2,
	"language.md": 3,
	"format.md":   4,
}

// GetSharedPrompt returns the shared fragments joined by separators, or "" when there are none.
func (pm *PromptManager) GetSharedPrompt() (string, error) {
	dir := filepath.Join(pm.Directory, "shared")
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read shared prompts: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := sharedOrder[files[i].Name()]
		oj, okJ := sharedOrder[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	var contents []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("failed to read prompt file", "path", path, "error", err)
			continue
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

// GetStagePrompt returns the instruction override of a stage, if present.
func (pm *PromptManager) GetStagePrompt(stageID string) (string, bool, error) {
	path := filepath.Join(pm.Directory, "stages", stageID+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read stage prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}
