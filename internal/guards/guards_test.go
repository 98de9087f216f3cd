// Package guards holds repository-wide source checks. It has no runtime code.
package guards

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const modulePath = "github.com/MahdiBaghbani/labrouter-go"

// findRepoRoot walks up from the working directory to the go.mod.
func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find go.mod in any parent directory")
		}
		dir = parent
	}
}

// walkSources calls fn for every non-test Go file under root/rel.
// Paths handed to fn are slash-separated and relative to root.
func walkSources(t *testing.T, root, rel string, fn func(relPath, content string)) {
	t.Helper()
	walkGoFiles(t, root, rel, false, fn)
}

func walkGoFiles(t *testing.T, root, rel string, withTests bool, fn func(relPath, content string)) {
	t.Helper()
	base := filepath.Join(root, rel)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return
	}
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || d.Name() == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || (!withTests && strings.HasSuffix(path, "_test.go")) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		r, _ := filepath.Rel(root, path)
		fn(filepath.ToSlash(r), string(data))
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", base, err)
	}
}

func lineOf(content string, offset int) string {
	return strconv.Itoa(1 + strings.Count(content[:offset], "\n"))
}
