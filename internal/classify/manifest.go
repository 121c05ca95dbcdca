package classify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Manifest is a snapshot of the dependency manifests found in a working
// directory. It is plain data: ReadManifest does the filesystem reads so
// Classify itself stays pure.
type Manifest struct {
	Dir          string
	PackageDeps  map[string]string // package.json dependencies + devDependencies
	Requirements string            // requirements.txt contents, lowercased
	Files        map[string]bool   // presence of marker files (angular.json, manage.py, ...)
}

// markerFiles are filenames whose mere presence is a classification signal.
var markerFiles = []string{
	"angular.json",
	"manage.py",
	"vite.config.js",
	"vite.config.ts",
	"next.config.js",
	"next.config.mjs",
	"next.config.ts",
	"app.py",
}

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// ReadManifest inspects dir for dependency manifests. A missing or
// unreadable directory yields a nil Manifest; individual unreadable files
// are skipped. The returned Manifest may be empty but is never partial in
// a way Classify cannot handle.
func ReadManifest(dir string) *Manifest {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}

	m := &Manifest{
		Dir:         dir,
		PackageDeps: make(map[string]string),
		Files:       make(map[string]bool),
	}

	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		var pkg packageJSON
		if err := json.Unmarshal(data, &pkg); err == nil {
			for name, ver := range pkg.Dependencies {
				m.PackageDeps[name] = ver
			}
			for name, ver := range pkg.DevDependencies {
				m.PackageDeps[name] = ver
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, "requirements.txt")); err == nil {
		m.Requirements = strings.ToLower(string(data))
	}

	for _, name := range markerFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			m.Files[name] = true
		}
	}

	if len(m.PackageDeps) == 0 && m.Requirements == "" && len(m.Files) == 0 {
		return nil
	}
	return m
}

func (m *Manifest) hasDep(names ...string) bool {
	if m == nil {
		return false
	}
	for _, n := range names {
		if _, ok := m.PackageDeps[n]; ok {
			return true
		}
	}
	return false
}

func (m *Manifest) hasFile(names ...string) bool {
	if m == nil {
		return false
	}
	for _, n := range names {
		if m.Files[n] {
			return true
		}
	}
	return false
}

func (m *Manifest) hasRequirement(names ...string) bool {
	if m == nil || m.Requirements == "" {
		return false
	}
	for _, n := range names {
		if strings.Contains(m.Requirements, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
