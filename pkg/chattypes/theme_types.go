package chattypes

// ThemeConfig mirrors the [theme] table of a Streamlit-style config.toml.
type ThemeConfig struct {
	PrimaryColor             string `toml:"primaryColor" json:"primary_color"`
	BackgroundColor          string `toml:"backgroundColor" json:"background_color"`
	SecondaryBackgroundColor string `toml:"secondaryBackgroundColor" json:"secondary_background_color"`
	TextColor                string `toml:"textColor" json:"text_color"`
	Font                     string `toml:"font" json:"font"`
}

// ThemeFile is the top-level layout of the theme TOML file.
type ThemeFile struct {
	Theme ThemeConfig `toml:"theme"`
}
