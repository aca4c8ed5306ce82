package images

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// CollectImageFiles expands a list of files and directories into the image
// files they name.
//
// Directories are read one level deep and only supported image extensions are
// kept. Explicit file arguments are kept as given, even with an unsupported
// extension, so the decoder can report the problem.
//
// Arguments:
//   - inputs: File and directory paths.
//
// Returns:
//   - []string: Image paths, directory entries sorted by name.
//   - error: Error if a path cannot be read.
func CollectImageFiles(inputs ...string) ([]string, error) {
	var paths []string
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", input)
		}
		if !info.IsDir() {
			paths = append(paths, input)
			continue
		}

		entries, err := os.ReadDir(input)
		if err != nil {
			return nil, errors.Wrapf(err, "read dir %s", input)
		}

		var found []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if _, ok := FormatFromPath(entry.Name()); ok {
				found = append(found, filepath.Join(input, entry.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}

	return paths, nil
}
