package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tensord/internal/common/fsutil"
)

// modelExtensions lists file suffixes ScanDir treats as model artifacts.
var modelExtensions = []string{".tflite", ".onnx", ".pb", ".gguf", ".bin"}

// ScanDir walks a directory and registers every model file found, using the
// filename (without extension) as the registered name. Returns the number of
// files registered.
func (s *Store) ScanDir(dir string) (int, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return 0, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return 0, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return 0, fmt.Errorf("read dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !isModelExt(ext) {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		if _, err := s.RegisterModel(id, filepath.Join(abs, name), true); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func isModelExt(ext string) bool {
	for _, e := range modelExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
