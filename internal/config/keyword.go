package config

// KeywordConfig holds per-keyword overrides from the config file.
type KeywordConfig struct {
	// Restaurant forces the restaurant list route for this keyword.
	// Nil leaves the stored classification untouched.
	Restaurant *bool `yaml:"restaurant,omitempty"`

	// MaxItems overrides the global item cap. Zero means the global value.
	MaxItems int `yaml:"maxItems,omitempty"`

	// JitterRadiusMeters overrides the global radius. Zero means the global value.
	JitterRadiusMeters float64 `yaml:"jitterRadiusMeters,omitempty"`
}

// KeywordSettings is the effective per-run configuration of one keyword.
type KeywordSettings struct {
	Restaurant         *bool
	MaxItems           int
	JitterRadiusMeters float64
}

// ForKeyword merges the override for text, if any, with the global values.
func (c *Config) ForKeyword(text string) KeywordSettings {
	s := KeywordSettings{
		MaxItems:           c.MaxItems,
		JitterRadiusMeters: c.JitterRadiusMeters,
	}

	kc, ok := c.Keywords[text]
	if !ok {
		return s
	}
	s.Restaurant = kc.Restaurant
	if kc.MaxItems > 0 {
		s.MaxItems = kc.MaxItems
	}
	if kc.JitterRadiusMeters > 0 {
		s.JitterRadiusMeters = kc.JitterRadiusMeters
	}
	return s
}
