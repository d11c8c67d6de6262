package experiment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/armadaproject/reprotest/internal/common/reproerrors"
)

// Pair is two control directories whose output should be identical.
type Pair struct {
	First  string
	Second string
}

func (p Pair) String() string {
	return fmt.Sprintf("%s vs %s", filepath.Base(p.First), filepath.Base(p.Second))
}

// ExperimentPairs returns every pair of the given control directories. Relative paths are
// resolved against cwd, and paths resolving to the same directory are only used once.
// Pairs keep the order the directories were given in.
func ExperimentPairs(dirs []string, cwd string) ([]Pair, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, dir := range dirs {
		path := dir
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.WithStack(&reproerrors.ErrInvalidArgument{
				Name:    "dirs",
				Value:   dir,
				Message: fmt.Sprintf("Directory %s does not exist", dir),
			})
		}
		if !info.IsDir() {
			return nil, errors.WithStack(&reproerrors.ErrInvalidArgument{
				Name:    "dirs",
				Value:   dir,
				Message: fmt.Sprintf("Path %s is not a directory", dir),
			})
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if !seen[resolved] {
			seen[resolved] = true
			paths = append(paths, resolved)
		}
	}
	if len(paths) < 2 {
		return nil, errors.WithStack(&reproerrors.ErrInvalidArgument{
			Name:    "dirs",
			Value:   dirs,
			Message: "Need at least two directories with --dirs to compare",
		})
	}

	var pairs []Pair
	for i := range paths {
		for j := i + 1; j < len(paths); j++ {
			pairs = append(pairs, Pair{First: paths[i], Second: paths[j]})
		}
	}
	return pairs, nil
}
