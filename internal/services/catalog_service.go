// Package services provides the CatalogService for the selectable model catalog.
// The catalog is embedded YAML listing each provider, its models and its default model.
package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"apple2chat/internal/data/embedded"
	"apple2chat/internal/logger"
	"apple2chat/pkg/chattypes"
)

// CatalogService provides model catalog lookups and validation.
type CatalogService struct {
	initialized bool
	mu          sync.RWMutex
	catalog     *chattypes.ModelCatalog
}

// NewCatalogService creates a new catalog service instance.
func NewCatalogService() *CatalogService {
	return &CatalogService{
		initialized: false,
	}
}

// Name returns the service name for registration and identification.
func (c *CatalogService) Name() string {
	return "catalog"
}

// Initialize loads and parses the embedded catalog data.
func (c *CatalogService) Initialize() error {
	if c.initialized {
		return nil
	}

	catalog, err := ParseCatalog(embedded.CatalogData)
	if err != nil {
		return err
	}

	c.catalog = catalog
	c.initialized = true
	return nil
}

// ParseCatalog decodes catalog YAML and fills in each model's provider reference.
func ParseCatalog(data []byte) (*chattypes.ModelCatalog, error) {
	catalog := &chattypes.ModelCatalog{}
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	if len(catalog.Providers) == 0 {
		return nil, fmt.Errorf("model catalog defines no providers")
	}

	for providerID, provider := range catalog.Providers {
		if len(provider.Models) == 0 {
			return nil, fmt.Errorf("provider '%s' has no models", providerID)
		}
		for i := range provider.Models {
			provider.Models[i].Provider = providerID
		}
		if provider.DefaultModel == "" {
			provider.DefaultModel = provider.Models[0].ID
		}
		catalog.Providers[providerID] = provider
	}
	return catalog, nil
}

// GetProviders returns the sorted list of provider IDs in the catalog.
func (c *CatalogService) GetProviders() ([]string, error) {
	if !c.initialized {
		return nil, fmt.Errorf("catalog service not initialized")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	providers := make([]string, 0, len(c.catalog.Providers))
	for providerID := range c.catalog.Providers {
		providers = append(providers, providerID)
	}
	sort.Strings(providers)
	return providers, nil
}

// GetProvider returns the catalog entry for a provider.
// Unknown providers yield a ConfigurationError.
func (c *CatalogService) GetProvider(provider string) (chattypes.CatalogProvider, error) {
	if !c.initialized {
		return chattypes.CatalogProvider{}, fmt.Errorf("catalog service not initialized")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.catalog.Providers[provider]
	if !ok {
		return chattypes.CatalogProvider{}, chattypes.NewConfigurationError("unknown provider: %s", provider)
	}
	return entry, nil
}

// AvailableModels returns a copy of the selectable models for a provider, in catalog order.
func (c *CatalogService) AvailableModels(provider string) ([]chattypes.CatalogModel, error) {
	entry, err := c.GetProvider(provider)
	if err != nil {
		return nil, err
	}
	models := make([]chattypes.CatalogModel, len(entry.Models))
	copy(models, entry.Models)
	return models, nil
}

// ModelIDs returns the selectable model IDs for a provider.
func (c *CatalogService) ModelIDs(provider string) ([]string, error) {
	models, err := c.AvailableModels(provider)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	return ids, nil
}

// DefaultModel returns the default model ID for a provider.
func (c *CatalogService) DefaultModel(provider string) (string, error) {
	entry, err := c.GetProvider(provider)
	if err != nil {
		return "", err
	}
	return entry.DefaultModel, nil
}

// GetModel retrieves a specific model by provider and ID.
func (c *CatalogService) GetModel(provider, modelID string) (*chattypes.CatalogModel, error) {
	models, err := c.AvailableModels(provider)
	if err != nil {
		return nil, err
	}
	for _, model := range models {
		if model.ID == modelID {
			return &model, nil
		}
	}
	return nil, chattypes.NewValidationError("Model %s not in available models", modelID)
}

// IsValidModel checks if a model is selectable for the given provider.
func (c *CatalogService) IsValidModel(provider, modelID string) bool {
	_, err := c.GetModel(provider, modelID)
	return err == nil
}

// UpdateModels replaces the selectable model list of a provider.
// An empty list is ignored and the current models are kept. If the provider's
// default is no longer listed, the first model becomes the default.
func (c *CatalogService) UpdateModels(provider string, ids []string) error {
	if !c.initialized {
		return fmt.Errorf("catalog service not initialized")
	}

	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	if len(cleaned) == 0 {
		logger.Warn("Empty model list provided, keeping current models", "provider", provider)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.catalog.Providers[provider]
	if !ok {
		return chattypes.NewConfigurationError("unknown provider: %s", provider)
	}

	known := make(map[string]chattypes.CatalogModel, len(entry.Models))
	for _, m := range entry.Models {
		known[m.ID] = m
	}
	models := make([]chattypes.CatalogModel, 0, len(cleaned))
	for _, id := range cleaned {
		if m, ok := known[id]; ok {
			models = append(models, m)
			continue
		}
		models = append(models, chattypes.CatalogModel{ID: id, Name: id, Provider: provider})
	}

	entry.Models = models
	if !containsModel(models, entry.DefaultModel) {
		entry.DefaultModel = models[0].ID
	}
	c.catalog.Providers[provider] = entry
	logger.Debug("Updated model list", "provider", provider, "count", len(models))
	return nil
}

// SuggestModels returns model IDs of the provider that resemble pattern, best match first.
func (c *CatalogService) SuggestModels(provider, pattern string, maxSuggestions int) []string {
	models, err := c.AvailableModels(provider)
	if err != nil {
		return nil
	}

	type suggestion struct {
		model string
		score int
	}
	var scored []suggestion
	pattern = strings.ToLower(pattern)
	for _, model := range models {
		if score := similarityScore(strings.ToLower(model.ID), pattern); score > 0 {
			scored = append(scored, suggestion{model: model.ID, score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	limit := maxSuggestions
	if limit <= 0 || limit > len(scored) {
		limit = len(scored)
	}
	suggestions := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		suggestions = append(suggestions, scored[i].model)
	}
	return suggestions
}

func containsModel(models []chattypes.CatalogModel, id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// similarityScore computes a simple similarity score between two strings.
// Higher scores indicate greater similarity. Returns 0 for no similarity.
func similarityScore(text, pattern string) int {
	if pattern == "" {
		return 0
	}
	if text == pattern {
		return 100
	}
	if strings.HasPrefix(text, pattern) {
		return 90
	}
	if strings.Contains(text, pattern) {
		return 80
	}
	if strings.HasSuffix(text, pattern) {
		return 70
	}

	common := 0
	for _, char := range pattern {
		if strings.ContainsRune(text, char) {
			common++
		}
	}
	if score := (common * 50) / len(pattern); score >= 25 {
		return score
	}
	return 0
}
