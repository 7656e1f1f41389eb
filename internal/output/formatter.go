// Package output provides formatters for displaying managed resources
// in various formats (table, YAML, JSON).
package output

import (
	"fmt"

	"github.com/jbweber/quarry"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for declarative consumption.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Property is one property row: the declared descriptor plus the current
// value as fetched by the caller.
type Property struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Settable bool   `yaml:"settable" json:"settable"`
	Value    string `yaml:"value" json:"value"`
	Default  bool   `yaml:"default" json:"default"`
}

// Formatter formats managed resources for output.
type Formatter interface {
	// FormatVMList formats the machine listing.
	FormatVMList(vms []quarry.VMInfo) (string, error)

	// FormatProperties formats a property listing.
	FormatProperties(props []Property) (string, error)

	// FormatVolumeInfo formats one volume's properties.
	FormatVolumeInfo(info quarry.VolumeInfo) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
