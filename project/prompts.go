// ABOUTME: File-backed prompt assembler: task refs name prompt templates in a project directory.
// ABOUTME: Rendered prompts append execution context sections; template text itself stays opaque.
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

// DirAssembler renders prompts from files under a directory. A task ref
// "discovery/draft" resolves to "<dir>/discovery/draft.md".
type DirAssembler struct {
	dir string
}

// NewDirAssembler creates an assembler rooted at dir.
func NewDirAssembler(dir string) *DirAssembler {
	return &DirAssembler{dir: dir}
}

// Render loads the template for taskRef and appends context sections for
// produced documents, execution vars, and any extras (remediation feedback,
// QA artifacts). Sections are emitted in sorted key order so rendering is
// deterministic.
func (a *DirAssembler) Render(ctx context.Context, taskRef string, state *engine.ExecutionState, extra map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(a.dir, filepath.FromSlash(taskRef)+".md")
	template, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load prompt template %q: %w", taskRef, err)
	}

	var b strings.Builder
	b.Write(template)

	if len(state.ProducedDocuments) > 0 {
		b.WriteString("\n\n## Produced documents\n")
		for _, role := range sortedKeys(state.ProducedDocuments) {
			fmt.Fprintf(&b, "- %s: %s\n", role, state.ProducedDocuments[role])
		}
	}
	if len(state.Vars) > 0 {
		b.WriteString("\n## Execution context\n")
		for _, key := range sortedKeys(state.Vars) {
			fmt.Fprintf(&b, "- %s: %s\n", key, state.Vars[key])
		}
	}
	for _, key := range sortedKeys(extra) {
		if extra[key] == "" {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", key, extra[key])
	}
	return b.String(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ engine.PromptAssembler = (*DirAssembler)(nil)
