// Package fileset walks a directory tree the way read_files needs: depth
// first, skipping anything the repository's own .gitignore excludes,
// yielding each file's path in a stable (lexical) order.
//
// Grounded on the teacher's utils/codebaseindex walk (scan.go's
// walkDir/loadGitignore/shouldIgnoreDir), trimmed to the single concern
// read_files actually needs: a flat, ordered file list under a root.
package fileset

import (
	"os"
	"path/filepath"
	"sort"

	gitignore "github.com/sabhiram/go-gitignore"
)

// alwaysIgnoredDirs mirrors the teacher's always-ignore set
// (utils/filescan/scanner.go's DefaultOptions), directories no recipe
// author is plausibly asking read_files to descend into.
var alwaysIgnoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// Walk returns every regular file under root, in lexical path order,
// skipping entries matched by the root's .gitignore (if present) and the
// always-ignored directory names above.
func Walk(root string) ([]string, error) {
	ignore := loadGitignore(root)

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if alwaysIgnoredDirs[d.Name()] || (ignore != nil && ignore.MatchesPath(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		if ignore != nil && ignore.MatchesPath(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func loadGitignore(root string) *gitignore.GitIgnore {
	gi, err := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
