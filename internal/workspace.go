package internal

import (
	"os"
	"path/filepath"
)

const ConfigFilename = "rag.yaml"

// Workspace is the directory tree a config file governs. Relative artifact
// and data paths in the config are interpreted from the working directory.
type Workspace struct {
	Root       string
	ConfigPath string
	Found      bool
}

type WorkspaceResolver struct {
	cwd string
}

func NewWorkspaceResolver() *WorkspaceResolver {
	cwd, _ := os.Getwd()
	return &WorkspaceResolver{cwd: cwd}
}

// Resolve returns the workspace for an explicit config path, or the nearest
// directory at or above the working directory holding rag.yaml. Without
// either, the working directory is used with a not-yet-existing config.
func (r *WorkspaceResolver) Resolve(explicit string) Workspace {
	if explicit != "" {
		_, err := os.Stat(explicit)
		return Workspace{
			Root:       filepath.Dir(explicit),
			ConfigPath: explicit,
			Found:      err == nil,
		}
	}

	if ws, ok := r.find(r.cwd); ok {
		return ws
	}

	return Workspace{
		Root:       r.cwd,
		ConfigPath: filepath.Join(r.cwd, ConfigFilename),
	}
}

func (r *WorkspaceResolver) find(dir string) (Workspace, bool) {
	if dir == "" {
		return Workspace{}, false
	}
	for {
		path := filepath.Join(dir, ConfigFilename)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return Workspace{Root: dir, ConfigPath: path, Found: true}, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Workspace{}, false
		}
		dir = parent
	}
}
