// Package chattypes provides type definitions for the apple2chat model catalog.
package chattypes

// ModelCatalog is the root of the embedded catalog YAML.
type ModelCatalog struct {
	Version   string                     `yaml:"version"`
	Providers map[string]CatalogProvider `yaml:"providers"`
}

// CatalogProvider describes one completion provider and the models it serves.
type CatalogProvider struct {
	Name         string         `yaml:"name"`
	BaseURL      string         `yaml:"base_url"`
	DefaultModel string         `yaml:"default_model"`
	Models       []CatalogModel `yaml:"models"`
}

// CatalogModel is a single selectable model.
type CatalogModel struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	ContextLength int    `yaml:"context_length" json:"context_length"`
	MaxOutput     int    `yaml:"max_output_tokens" json:"max_output_tokens"`
	Provider      string `yaml:"-" json:"provider"` // Set during catalog loading
}
