package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/furzing/leakWhisperer/internal/domain"
)

type locationsFile struct {
	Locations []domain.Location `yaml:"locations"`
}

// LoadLocations reads the meter location pool from a YAML file of the form:
//
//	locations:
//	  - lat: 31.9539
//	    lon: 35.9106
//	    street: "..."
//
// An empty path returns domain.DefaultLocations.
func LoadLocations(path string) ([]domain.Location, error) {
	if path == "" {
		return domain.DefaultLocations, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}

	var f locationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse locations file %s: %w", path, err)
	}
	if len(f.Locations) == 0 {
		return nil, fmt.Errorf("locations file %s has no locations", path)
	}
	for i, loc := range f.Locations {
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
			return nil, fmt.Errorf("location %d in %s is out of range: %.4f,%.4f", i, path, loc.Lat, loc.Lon)
		}
	}
	return f.Locations, nil
}
