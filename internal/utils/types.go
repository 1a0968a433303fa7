package utils

// TargetEntry is one measurement target from a --urllist YAML file.
type TargetEntry struct {
	URL         string `yaml:"link"`
	Connections int    `yaml:"connections,omitempty"`
}
