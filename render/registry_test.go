package render

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/drummonds/goshot/format"
)

// Every tag with a module entry must resolve to an extracted, readable
// resource.
func TestRegistry_Completeness(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	defer registry.Close()

	for _, tag := range ModuleTags() {
		moduleURL, err := registry.ModuleURL(tag)
		if err != nil {
			t.Errorf("ModuleURL(%s) returned error: %v", tag, err)
			continue
		}
		parsed, err := url.Parse(moduleURL)
		if err != nil || parsed.Scheme != "file" {
			t.Errorf("ModuleURL(%s) = %q, want a file:// locator", tag, moduleURL)
			continue
		}
		data, err := os.ReadFile(parsed.Path)
		if err != nil {
			t.Errorf("Module resource for %s unreadable: %v", tag, err)
			continue
		}
		// Every module must load the shared runtime before its own script.
		if !strings.Contains(string(data), "runtime.js") {
			t.Errorf("Module %s does not reference the shared runtime", tag)
		}
	}
}

// The URL tag bypasses the module system entirely.
func TestRegistry_URLHasNoModule(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	defer registry.Close()

	_, err = registry.ModuleURL(format.URL)
	if !errors.Is(err, ErrNoModule) {
		t.Errorf("ModuleURL(url) = %v, want ErrNoModule", err)
	}
}

func TestRegistry_SharedRuntimeExtracted(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	defer registry.Close()

	moduleURL, err := registry.ModuleURL(format.PDF)
	if err != nil {
		t.Fatalf("ModuleURL(pdf) returned error: %v", err)
	}
	parsed, _ := url.Parse(moduleURL)
	runtimePath := strings.TrimSuffix(parsed.Path, "pdf.html") + "runtime.js"
	data, err := os.ReadFile(runtimePath)
	if err != nil {
		t.Fatalf("Shared runtime not extracted alongside modules: %v", err)
	}
	// The completion promise must be assigned synchronously at load.
	if !strings.Contains(string(data), "globalThis.renderComplete") {
		t.Error("Runtime does not assign the completion promise")
	}
}

func TestRegistry_CloseRemovesDir(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	dir := registry.dir
	if err := registry.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Module directory still present after Close: %v", err)
	}
}
