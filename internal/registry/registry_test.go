package registry

import (
	"os"
	"path/filepath"
	"testing"

	"tensord/pkg/status"
)

func TestRegisterModel_VersionsMonotonic(t *testing.T) {
	s := NewStore()
	v1, err := s.RegisterModel("m", "/models/m-1.tflite", true)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	v2, err := s.RegisterModel("m", "/models/m-2.tflite", true)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if v1 != 1 || v2 != 2 {
		t.Fatalf("got versions %d, %d; want 1, 2", v1, v2)
	}
}

func TestLookupModel_LatestAndSpecific(t *testing.T) {
	s := NewStore()
	_, _ = s.RegisterModel("m", "/a", false)
	_, _ = s.RegisterModel("m", "/b", false)
	latest, err := s.LookupModel("m", 0)
	if err != nil {
		t.Fatalf("lookup latest: %v", err)
	}
	if latest.Path != "/b" || latest.Version != 2 {
		t.Fatalf("latest: %+v", latest)
	}
	v1, err := s.LookupModel("m", 1)
	if err != nil {
		t.Fatalf("lookup v1: %v", err)
	}
	if v1.Path != "/a" {
		t.Fatalf("v1: %+v", v1)
	}
	if _, err := s.LookupModel("m", 9); status.CodeOf(err) != status.ModelNotFound {
		t.Fatalf("missing version: %v", err)
	}
	if _, err := s.LookupModel("nope", 0); status.CodeOf(err) != status.ModelNotFound {
		t.Fatalf("missing name: %v", err)
	}
}

func TestDeleteModel_SpecificVersion(t *testing.T) {
	s := NewStore()
	_, _ = s.RegisterModel("m", "/a", false)
	_, _ = s.RegisterModel("m", "/b", false)
	if err := s.DeleteModel("m", 1); err != nil {
		t.Fatalf("delete v1: %v", err)
	}
	if _, err := s.LookupModel("m", 1); err == nil {
		t.Fatal("v1 still present")
	}
	if _, err := s.LookupModel("m", 2); err != nil {
		t.Fatalf("v2 should survive: %v", err)
	}
}

func TestDeleteModel_VersionZeroRemovesAll(t *testing.T) {
	s := NewStore()
	_, _ = s.RegisterModel("m", "/a", false)
	_, _ = s.RegisterModel("m", "/b", false)
	if err := s.DeleteModel("m", 0); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if _, err := s.LookupModel("m", 0); status.CodeOf(err) != status.ModelNotFound {
		t.Fatalf("expected ModelNotFound, got %v", err)
	}
	// versions continue after re-register
	v, err := s.RegisterModel("m", "/c", false)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if v != 3 {
		t.Fatalf("got version %d, want 3", v)
	}
}

func TestPipelineEntries(t *testing.T) {
	s := NewStore()
	if err := s.SetPipeline("p", "- name: src\n  role: source\n"); err != nil {
		t.Fatalf("set: %v", err)
	}
	e, err := s.Pipeline("p")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Description == "" {
		t.Fatal("empty description")
	}
	if err := s.DeletePipeline("p"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Pipeline("p"); err == nil {
		t.Fatal("pipeline still present")
	}
	if err := s.DeletePipeline("p"); status.CodeOf(err) != status.ModelNotFound {
		t.Fatalf("double delete: %v", err)
	}
}

func TestSetPipeline_Validation(t *testing.T) {
	s := NewStore()
	if err := s.SetPipeline("", "x"); status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("empty name: %v", err)
	}
	if err := s.SetPipeline("p", ""); status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("empty description: %v", err)
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"alpha.tflite", "beta.onnx", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	s := NewStore()
	n, err := s.ScanDir(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 2 {
		t.Fatalf("registered %d files, want 2", n)
	}
	e, err := s.LookupModel("alpha", 0)
	if err != nil {
		t.Fatalf("lookup alpha: %v", err)
	}
	if filepath.Base(e.Path) != "alpha.tflite" {
		t.Fatalf("path: %q", e.Path)
	}
}
