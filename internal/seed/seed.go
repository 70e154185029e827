// Package seed carries the reference data loaded by formationctl.
package seed

import (
	_ "embed"
	"fmt"

	"github.com/Lllllllleong/formationflow/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed activities.yaml
var activitiesYAML []byte

// ActivityCodes returns the bundled activity classification entries.
func ActivityCodes() ([]models.ActivityCode, error) {
	return ParseActivityCodes(activitiesYAML)
}

// ParseActivityCodes decodes a YAML list of activity codes.
func ParseActivityCodes(raw []byte) ([]models.ActivityCode, error) {
	var codes []models.ActivityCode
	if err := yaml.Unmarshal(raw, &codes); err != nil {
		return nil, fmt.Errorf("failed to parse activity codes: %w", err)
	}
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c.Code == "" {
			return nil, fmt.Errorf("activity code without code: %q", c.Description)
		}
		if seen[c.Code] {
			return nil, fmt.Errorf("duplicate activity code %s", c.Code)
		}
		seen[c.Code] = true
	}
	return codes, nil
}
