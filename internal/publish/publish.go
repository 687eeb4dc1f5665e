// Package publish writes saved trees out as Markdown files.
package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"rabbithole/internal/model"
)

type WriteOptions struct {
	Overwrite bool
}

type WriteResult struct {
	Written []string `json:"written"`
}

// WriteTree writes <toDir>/trees/<tree-id>.md.
func WriteTree(t model.SavedTree, toDir string, opt WriteOptions) (WriteResult, error) {
	if strings.TrimSpace(t.ID) == "" {
		return WriteResult{}, errors.New("missing tree id")
	}
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	toDir = filepath.Clean(toDir)

	outDir := filepath.Join(toDir, "trees")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WriteResult{}, err
	}
	outPath := filepath.Join(outDir, t.ID+".md")
	if err := writeFile(outPath, []byte(RenderTreeMarkdown(t)), opt.Overwrite); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Written: []string{outPath}}, nil
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
