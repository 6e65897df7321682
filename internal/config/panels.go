package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Panel flavor values. Each flavor has its own adapter implementation.
const (
	PanelFlavorXUI     = "xui"
	PanelFlavorMarzban = "marzban"
)

// PanelEntry describes one remote provisioning panel.
type PanelEntry struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Flavor   string `yaml:"flavor"`
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PanelsFile is the on-disk panels inventory.
type PanelsFile struct {
	Panels []PanelEntry `yaml:"panels"`
}

// LoadPanels reads and validates the YAML panels inventory at path.
func LoadPanels(path string) ([]PanelEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("panels: read %s: %w", path, err)
	}
	return ParsePanels(data)
}

// ParsePanels parses and validates panels inventory YAML.
func ParsePanels(data []byte) ([]PanelEntry, error) {
	var f PanelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("panels: parse: %w", err)
	}

	var errs []string
	seen := make(map[int64]struct{}, len(f.Panels))
	for i, p := range f.Panels {
		if p.ID <= 0 {
			errs = append(errs, fmt.Sprintf("panel[%d]: id must be positive", i))
		}
		if _, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Sprintf("panel[%d]: duplicate id %d", i, p.ID))
		}
		seen[p.ID] = struct{}{}
		switch p.Flavor {
		case PanelFlavorXUI, PanelFlavorMarzban:
		default:
			errs = append(errs, fmt.Sprintf("panel[%d]: unknown flavor %q (allowed: %s, %s)",
				i, p.Flavor, PanelFlavorXUI, PanelFlavorMarzban))
		}
		if !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
			errs = append(errs, fmt.Sprintf("panel[%d]: base_url %q must start with http:// or https://", i, p.BaseURL))
		}
		if p.Username == "" || p.Password == "" {
			errs = append(errs, fmt.Sprintf("panel[%d]: username and password must be set", i))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("panels validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return f.Panels, nil
}
