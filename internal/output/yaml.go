package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/quarry"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatVMList formats the machine listing as YAML.
func (f *YAMLFormatter) FormatVMList(vms []quarry.VMInfo) (string, error) {
	data, err := yaml.Marshal(vms)
	if err != nil {
		return "", fmt.Errorf("failed to marshal machine list to YAML: %w", err)
	}
	return string(data), nil
}

// FormatProperties formats a property listing as YAML.
func (f *YAMLFormatter) FormatProperties(props []Property) (string, error) {
	data, err := yaml.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to marshal properties to YAML: %w", err)
	}
	return string(data), nil
}

// FormatVolumeInfo formats one volume's properties as YAML.
func (f *YAMLFormatter) FormatVolumeInfo(info quarry.VolumeInfo) (string, error) {
	data, err := yaml.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal volume info to YAML: %w", err)
	}
	return string(data), nil
}
