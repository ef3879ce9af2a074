package git

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SelectFiles returns the files of entries matching any of patterns.
// Patterns use doublestar syntax ("**/*.py", "notebooks/*"). No patterns
// selects every entry. Each file is returned once, in entry order.
func SelectFiles(entries []FileStatus, patterns []string) ([]string, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid file pattern %q", p)
		}
	}

	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.File == "" {
			continue
		}
		if _, dup := seen[e.File]; dup {
			continue
		}

		file := strings.TrimPrefix(e.File, "/")
		ok := len(patterns) == 0
		for _, p := range patterns {
			matched, err := doublestar.Match(strings.TrimPrefix(p, "/"), file)
			if err != nil {
				return nil, fmt.Errorf("match %q: %w", p, err)
			}
			if matched {
				ok = true
				break
			}
		}
		if ok {
			seen[e.File] = struct{}{}
			out = append(out, e.File)
		}
	}
	return out, nil
}
