// Package annotations provides the key/value metadata bag that backs every
// object in the metadata graph. Each annotation remembers the configuration
// source that wrote it so lower-ranked writers cannot clobber higher-ranked ones.
package annotations

import "fmt"

// ConfigurationSource ranks who configured a piece of metadata
type ConfigurationSource int

const (
	// Convention is metadata discovered by a naming or shape convention
	Convention ConfigurationSource = iota
	// DataAnnotation is metadata declared through an attribute on the mapped type
	DataAnnotation
	// Explicit is metadata configured directly by the user
	Explicit
)

// String returns the string representation of the configuration source
func (s ConfigurationSource) String() string {
	switch s {
	case Convention:
		return "convention"
	case DataAnnotation:
		return "data_annotation"
	case Explicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// ParseConfigurationSource converts a string to a ConfigurationSource
func ParseConfigurationSource(s string) (ConfigurationSource, error) {
	switch s {
	case "convention", "":
		return Convention, nil
	case "data_annotation":
		return DataAnnotation, nil
	case "explicit":
		return Explicit, nil
	default:
		return 0, fmt.Errorf("unknown configuration source: %s", s)
	}
}

// Overrides reports whether a write from s may replace metadata written by other
func (s ConfigurationSource) Overrides(other ConfigurationSource) bool {
	return s == Explicit || s >= other
}

// Max returns the higher ranked of the two sources
func Max(a, b ConfigurationSource) ConfigurationSource {
	if a > b {
		return a
	}
	return b
}
