package config

import (
	"os"
	"path/filepath"
	"testing"

	"tensord/pkg/status"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_EmptyPath(t *testing.T) {
	if _, err := Load(""); status.CodeOf(err) != status.InvalidConfig {
		t.Fatalf("got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); status.CodeOf(err) != status.InvalidConfig {
		t.Fatalf("got %v", err)
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	p := writeFile(t, "svc.ini", "single=1")
	if _, err := Load(p); status.CodeOf(err) != status.InvalidConfig {
		t.Fatalf("got %v", err)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	p := writeFile(t, "svc.yaml", "single: [unclosed")
	if _, err := Load(p); status.CodeOf(err) != status.InvalidConfig {
		t.Fatalf("got %v", err)
	}
}

// The same logical config must load identically from all three formats.
func TestLoad_FormatParity(t *testing.T) {
	yamlSrc := `
single:
  model: /models/m.tflite
  inputs:
    - name: in
      tensors:
        - type: float32
          dims: [1]
properties:
  max_input: "8"
`
	jsonSrc := `{
  "single": {
    "model": "/models/m.tflite",
    "inputs": [{"name": "in", "tensors": [{"type": "float32", "dims": [1]}]}]
  },
  "properties": {"max_input": "8"}
}`
	tomlSrc := `
[single]
model = "/models/m.tflite"

[[single.inputs]]
name = "in"

[[single.inputs.tensors]]
type = "float32"
dims = [1]

[properties]
max_input = "8"
`
	files := map[string]string{
		"svc.yaml": yamlSrc,
		"svc.json": jsonSrc,
		"svc.toml": tomlSrc,
	}
	for name, src := range files {
		f, err := Load(writeFile(t, name, src))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if f.Single == nil {
			t.Fatalf("%s: single section missing", name)
		}
		if f.Single.Model != "/models/m.tflite" {
			t.Fatalf("%s: model %q", name, f.Single.Model)
		}
		if len(f.Single.Inputs) != 1 || f.Single.Inputs[0].Name != "in" {
			t.Fatalf("%s: inputs %+v", name, f.Single.Inputs)
		}
		if f.Properties["max_input"] != "8" {
			t.Fatalf("%s: properties %+v", name, f.Properties)
		}
	}
}
