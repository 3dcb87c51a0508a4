package mount

import (
	"os"
	"path/filepath"
)

// Manager hands out named scratch directories that restore containers use
// to stage snapshot data before it is loaded into the node.
type Manager struct {
	base string
}

func New(base string) *Manager {
	return &Manager{
		base: base,
	}
}

func (m *Manager) Path(name string) string {
	return filepath.Join(m.base, filepath.Base(name))
}

func (m *Manager) Allocate(name string) (string, error) {
	dir := m.Path(name)

	err := os.MkdirAll(dir, os.ModeDir|os.ModePerm)
	if err != nil {
		return "", err
	}
	return dir, nil
}

func (m *Manager) Deallocate(name string) error {
	return os.RemoveAll(m.Path(name))
}
