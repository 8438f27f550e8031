package macro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocumentVersion is the current macro document format version.
const DocumentVersion = 1

// Document is the portable import/export form of a macro. It carries no
// IDs, depths or pair links; pairing is recomputed when it is loaded.
//
// YAML and JSON share the same field names:
//
//	version: 1
//	name: Daily report
//	items:
//	  - type: loop
//	    settings: {count: 3}
//	  - type: click
//	    settings: {x: 120, y: 48}
//	  - type: end_loop
type Document struct {
	Version     int            `yaml:"version" json:"version"`
	Name        string         `yaml:"name" json:"name"`
	Slug        string         `yaml:"slug,omitempty" json:"slug,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled     *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Items       []DocumentItem `yaml:"items" json:"items"`
}

// DocumentItem is one step in a Document. Enabled defaults to true.
type DocumentItem struct {
	Type     string         `yaml:"type" json:"type"`
	Enabled  *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Format selects the document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseDocument decodes a YAML or JSON macro document. JSON is accepted
// because it is a subset of YAML.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.Version == 0 {
		doc.Version = DocumentVersion
	}
	if doc.Version > DocumentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidDocument, doc.Version)
	}
	for i, it := range doc.Items {
		if strings.TrimSpace(it.Type) == "" {
			return nil, fmt.Errorf("%w: item %d has no type", ErrInvalidDocument, i+1)
		}
	}
	return &doc, nil
}

// EncodeDocument writes doc in the requested format.
func EncodeDocument(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML, "":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encoding document: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encoding document: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidDocument, format)
	}
}

// ToMacro converts the document into a Macro ready for validation.
func (d *Document) ToMacro() *Macro {
	m := &Macro{
		Name:    d.Name,
		Slug:    d.Slug,
		Enabled: true,
		Items:   make([]FlatItem, len(d.Items)),
	}
	if d.Description != "" {
		desc := d.Description
		m.Description = &desc
	}
	if d.Enabled != nil {
		m.Enabled = *d.Enabled
	}
	for i, it := range d.Items {
		enabled := true
		if it.Enabled != nil {
			enabled = *it.Enabled
		}
		m.Items[i] = FlatItem{
			Type:     it.Type,
			Enabled:  enabled,
			Settings: Settings(deepCopyMap(it.Settings)),
		}
	}
	return m
}

// DocumentFromMacro converts a Macro into its portable form.
func DocumentFromMacro(m *Macro) *Document {
	enabled := m.Enabled
	doc := &Document{
		Version: DocumentVersion,
		Name:    m.Name,
		Slug:    m.Slug,
		Enabled: &enabled,
		Items:   make([]DocumentItem, len(m.Items)),
	}
	if m.Description != nil {
		doc.Description = *m.Description
	}
	for i, it := range m.Items {
		item := DocumentItem{Type: it.Type, Settings: deepCopyMap(it.Settings)}
		if !it.Enabled {
			disabled := false
			item.Enabled = &disabled
		}
		doc.Items[i] = item
	}
	return doc
}
