// Package format maps file extensions, MIME types and human slugs onto the
// canonical set of renderer tags. Resolution is a pure lookup over a fixed
// whitelist; anything outside it is ErrUnknownFormat.
package format

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

// Tag identifies a supported document kind. It is the sole key into the
// renderer module registry.
type Tag string

const (
	PDF      Tag = "pdf"
	EPUB     Tag = "epub"
	DOCX     Tag = "docx"
	XLSX     Tag = "xlsx"
	PPTX     Tag = "pptx"
	Markdown Tag = "markdown"
	Mermaid  Tag = "mermaid"
	GPX      Tag = "gpx"
	// URL is captured by direct navigation and has no renderer module.
	URL Tag = "url"
)

// ErrUnknownFormat is returned when an identifier matches nothing in the
// whitelist. Not retried; surfaced verbatim to the caller.
var ErrUnknownFormat = errors.New("unknown format")

// Tags lists every supported tag in a stable order.
func Tags() []Tag {
	return []Tag{PDF, EPUB, DOCX, XLSX, PPTX, Markdown, Mermaid, GPX, URL}
}

// slugs are checked before MIME types so that an identifier ambiguous
// between the two namespaces resolves as a slug.
var slugs = map[string]Tag{
	"pdf":      PDF,
	"epub":     EPUB,
	"docx":     DOCX,
	"xlsx":     XLSX,
	"pptx":     PPTX,
	"markdown": Markdown,
	"md":       Markdown,
	"mermaid":  Mermaid,
	"gpx":      GPX,
	"url":      URL,
	"web":      URL,
}

var extensions = map[string]Tag{
	".pdf":      PDF,
	".epub":     EPUB,
	".docx":     DOCX,
	".xlsx":     XLSX,
	".pptx":     PPTX,
	".md":       Markdown,
	".markdown": Markdown,
	".mmd":      Mermaid,
	".mermaid":  Mermaid,
	".gpx":      GPX,
}

var mimeTypes = map[string]Tag{
	"application/pdf":      PDF,
	"application/epub+zip": EPUB,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   DOCX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         XLSX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": PPTX,
	"text/markdown":        Markdown,
	"application/gpx+xml":  GPX,
	"text/html":            URL,
}

// Resolve maps a file extension, MIME type or human slug to its Tag.
// Slug matches take priority over MIME matches.
func Resolve(identifier string) (Tag, error) {
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" {
		return "", ErrUnknownFormat
	}
	if tag, ok := slugs[id]; ok {
		return tag, nil
	}
	ext := id
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if tag, ok := extensions[ext]; ok {
		return tag, nil
	}
	// MIME types may carry parameters, eg "text/markdown; charset=utf-8"
	if base, _, found := strings.Cut(id, ";"); found {
		id = strings.TrimSpace(base)
	}
	if tag, ok := mimeTypes[id]; ok {
		return tag, nil
	}
	return "", ErrUnknownFormat
}

// Sniff inspects magic bytes. ZIP containers default to EPUB, matching the
// behaviour of the historical implementation; callers with a filename should
// prefer the extension.
func Sniff(data []byte) (Tag, bool) {
	if len(data) >= 4 && bytes.HasPrefix(data, []byte("%PDF")) {
		return PDF, true
	}
	if len(data) >= 2 && bytes.HasPrefix(data, []byte("PK")) {
		return EPUB, true
	}
	return "", false
}

// DetectInput resolves a tag for a raw input: an http(s) destination is the
// URL tag, otherwise the filename extension decides, with magic-byte
// sniffing as a last resort.
func DetectInput(name string, data []byte) (Tag, error) {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return URL, nil
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if tag, ok := extensions[ext]; ok {
			return tag, nil
		}
	}
	if tag, ok := Sniff(data); ok {
		return tag, nil
	}
	return "", ErrUnknownFormat
}
