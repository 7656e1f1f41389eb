package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/quarry"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatVMList formats the machine listing as a JSON array.
func (f *JSONFormatter) FormatVMList(vms []quarry.VMInfo) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}
	data, err := json.MarshalIndent(vms, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal machine list to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatProperties formats a property listing as a JSON array.
func (f *JSONFormatter) FormatProperties(props []Property) (string, error) {
	if len(props) == 0 {
		return "[]\n", nil
	}
	data, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal properties to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatVolumeInfo formats one volume's properties as a JSON object.
func (f *JSONFormatter) FormatVolumeInfo(info quarry.VolumeInfo) (string, error) {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal volume info to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
