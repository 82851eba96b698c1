package render

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/drummonds/goshot/format"
)

//go:embed templates
var templatesFS embed.FS

// moduleFiles maps each tag to its renderer module. The URL tag is absent by
// design: it is captured by direct navigation without a module. Adding a
// format means adding one entry here plus one conforming template.
var moduleFiles = map[format.Tag]string{
	format.PDF:      "pdf.html",
	format.EPUB:     "epub.html",
	format.DOCX:     "docx.html",
	format.XLSX:     "xlsx.html",
	format.PPTX:     "pptx.html",
	format.Markdown: "markdown.html",
	format.Mermaid:  "mermaid.html",
	format.GPX:      "gpx.html",
}

// Registry maps format tags to loadable renderer module resources. The
// embedded templates are extracted once to a temp directory so the browser
// can load them over file://. Read-only after construction.
type Registry struct {
	dir string
}

// NewRegistry extracts the embedded renderer modules and shared runtime to
// a temporary directory.
func NewRegistry() (*Registry, error) {
	dir, err := os.MkdirTemp("", "goshot-modules-")
	if err != nil {
		return nil, fmt.Errorf("unable to create module directory: %w", err)
	}

	entries, err := templatesFS.ReadDir("templates")
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("unable to read embedded templates: %w", err)
	}
	for _, entry := range entries {
		data, err := templatesFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("unable to read template %s: %w", entry.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dir, entry.Name()), data, 0644); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("unable to extract template %s: %w", entry.Name(), err)
		}
	}

	return &Registry{dir: dir}, nil
}

// ModuleURL returns the file:// locator of the renderer module for a tag.
func (r *Registry) ModuleURL(tag format.Tag) (string, error) {
	name, ok := moduleFiles[tag]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoModule, tag)
	}
	path := filepath.Join(r.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s (missing resource %s)", ErrNoModule, tag, name)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String(), nil
}

// ModuleTags lists the tags that have a renderer module, in registry order.
func ModuleTags() []format.Tag {
	tags := make([]format.Tag, 0, len(moduleFiles))
	for _, tag := range format.Tags() {
		if _, ok := moduleFiles[tag]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Close removes the extracted module directory.
func (r *Registry) Close() error {
	return os.RemoveAll(r.dir)
}
