package scenario

import (
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hay-kot/pulse/pkg/iojson"
)

// Discover expands doublestar patterns (for example "scenarios/**/*.yaml")
// into a sorted, de-duplicated list of files. "-" passes through so stdin
// can be replayed alongside files.
func Discover(patterns ...string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		if pattern == iojson.Stdin {
			files = append(files, pattern)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}
