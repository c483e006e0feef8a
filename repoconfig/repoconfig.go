// Package repoconfig loads a repository's YAML configuration: the
// default channel name, diff algorithm, worker-pool size and path
// typemaps, the same shape and validation style as the teacher's
// config.Config but re-aimed at a pijul-like repository instead of a
// git-to-Perforce import job.
package repoconfig

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

// DefaultChannel is the channel a freshly initialized repository starts
// on, mirroring spec.md's examples (pijul itself defaults to "main").
const DefaultChannel = "main"

// TypeMap classifies paths matching RePath as text or binary, deciding
// whether diffrecord runs a line diff or emits an opaque replacement.
type TypeMap struct {
	Binary bool           // True for a "binary <pattern>" line, false for "text <pattern>"
	RePath *regexp.Regexp // Compiled path pattern
}

// Config is a repository's on-disk configuration, read from
// .pijul/config.yaml.
type Config struct {
	DefaultChannel string    `yaml:"default_channel"`
	Algorithm      string    `yaml:"diff_algorithm"`
	Workers        int       `yaml:"workers"`
	TypeMaps       []string  `yaml:"typemaps"`
	ReTypeMaps     []TypeMap `yaml:"-"`
}

// Unmarshal parses config, applying defaults for any field the document
// leaves unset, then validates it.
func Unmarshal(config []byte) (*Config, error) {
	cfg := &Config{
		DefaultChannel: DefaultChannel,
		Algorithm:      "myers",
		Workers:        runtime.NumCPU(),
	}
	if err := yaml.Unmarshal(config, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads and parses the YAML configuration at path.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", path, err)
	}
	cfg, err := Unmarshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Algorithm) {
	case "myers", "patience", "histogram":
	default:
		return fmt.Errorf("unknown diff_algorithm %q: must be myers, patience or histogram", c.Algorithm)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	for _, m := range c.TypeMaps {
		parts := strings.Fields(m)
		if len(parts) != 2 {
			return fmt.Errorf("failed to split %q on a space", m)
		}
		kind, pattern := parts[0], parts[1]
		if kind != "binary" && kind != "text" {
			return fmt.Errorf("typemaps must start with 'binary' or 'text': %s", m)
		}
		pattern = strings.ReplaceAll(pattern, "*", "[^/]*")
		pattern = strings.ReplaceAll(pattern, "...", ".*") + "$"
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("failed to parse %q as a regex", pattern)
		}
		c.ReTypeMaps = append(c.ReTypeMaps, TypeMap{Binary: kind == "binary", RePath: re})
	}
	return nil
}

// IsBinaryPath reports whether path matches a configured binary typemap,
// overriding content-sniffing when the repository's config is explicit
// about a path pattern (e.g. "*.psd" always binary regardless of what
// h2non/filetype guesses from the header bytes).
func (c *Config) IsBinaryPath(path string) (binary bool, matched bool) {
	for _, m := range c.ReTypeMaps {
		if m.RePath.MatchString(path) {
			return m.Binary, true
		}
	}
	return false, false
}
