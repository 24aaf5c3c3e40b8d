// Package embedded provides access to embedded data files: the model catalog,
// the default theme and stylesheet, and the chat page template.
package embedded

import _ "embed"

// CatalogData contains the embedded model catalog YAML data.
//
//go:embed catalog.yaml
var CatalogData []byte
