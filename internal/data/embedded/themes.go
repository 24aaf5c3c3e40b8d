package embedded

import _ "embed"

// DefaultThemeData contains the embedded default [theme] TOML.
//
//go:embed theme.toml
var DefaultThemeData []byte

// StyleSheetData contains the embedded default Apple ][e stylesheet.
//
//go:embed style.css
var StyleSheetData []byte
