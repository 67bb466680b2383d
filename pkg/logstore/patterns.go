package logstore

import (
	"fmt"

	"github.com/gobwas/glob"
)

// projectFilter hides project directories whose names match any ignore pattern.
type projectFilter struct {
	ignored []glob.Glob
}

func newProjectFilter(patterns []string) (*projectFilter, error) {
	f := &projectFilter{}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern '%s': %w", pattern, err)
		}
		f.ignored = append(f.ignored, g)
	}
	return f, nil
}

// Ignored reports whether the project directory name is hidden.
func (f *projectFilter) Ignored(name string) bool {
	for _, g := range f.ignored {
		if g.Match(name) {
			return true
		}
	}
	return false
}
