package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Layers from the bottom up. A package may import anything at or below its
// own layer, never above. Test files are exempt because they wire fixtures
// from several layers.
var layers = []struct {
	name     string
	prefixes []string
}{
	{"platform", []string{"internal/platform/", "internal/pkg/", "internal/observability/"}},
	{"domain", []string{"internal/domain/"}},
	{"data", []string{"internal/data/"}},
	{"infra", []string{"internal/cache/", "internal/realtime/"}},
	{"modules", []string{"internal/modules/"}},
	{"http", []string{"internal/http/"}},
	{"app", []string{"internal/app/"}},
}

// sideways lists same-rank packages that must not see each other.
var sideways = map[string][]string{
	"internal/cache/":    {"internal/realtime/"},
	"internal/realtime/": {"internal/cache/"},
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)

	type violation struct {
		file string
		imp  string
		rule string
	}
	var violations []violation

	fset := token.NewFileSet()
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "node_modules", ".gocache":
				return filepath.SkipDir
			default:
				return nil
			}
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		rank := rankOf(rel)
		if rank < 0 {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil || !strings.HasPrefix(imp, modulePath+"/") {
				continue
			}
			target := strings.TrimPrefix(imp, modulePath+"/") + "/"
			if r := rankOf(target); r > rank {
				violations = append(violations, violation{file: rel, imp: imp, rule: layers[rank].name + " -> " + layers[r].name})
				continue
			}
			for from, banned := range sideways {
				if !strings.HasPrefix(rel, from) {
					continue
				}
				for _, b := range banned {
					if strings.HasPrefix(target, b) {
						violations = append(violations, violation{file: rel, imp: imp, rule: from + " -> " + b})
					}
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (%s)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

func TestEveryInternalPackageHasALayer(t *testing.T) {
	root, _ := moduleRoot(t)
	var missing []string
	err := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, "internal/architecture/") {
			return nil
		}
		if rankOf(rel) < 0 {
			missing = append(missing, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk internal/: %v", err)
	}
	if len(missing) > 0 {
		t.Fatalf("files outside any layer:\n%s", strings.Join(missing, "\n"))
	}
}

func rankOf(rel string) int {
	for i, l := range layers {
		for _, p := range l.prefixes {
			if strings.HasPrefix(rel, p) {
				return i
			}
		}
	}
	return -1
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return root, modulePath
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
