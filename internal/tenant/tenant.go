package tenant

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Navneet-55/msmesolut/internal/agent"
)

// Tenant is one organization's operator-side configuration.
type Tenant struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name,omitempty"`
	Plan          string     `yaml:"plan,omitempty"`            // overrides the plan stored on the organization
	RateLimit     int        `yaml:"rate_limit,omitempty"`      // requests per second; 0 means the manager default
	DailyRunLimit int        `yaml:"daily_run_limit,omitempty"` // agent runs per UTC day; 0 means no limit
	Schedules     []Schedule `yaml:"schedules,omitempty"`
}

// Schedule is a recurring agent run.
type Schedule struct {
	Cron        string         `yaml:"cron"`
	AgentType   string         `yaml:"agent_type"`
	Input       map[string]any `yaml:"input"`
	EntityID    string         `yaml:"entity_id,omitempty"`
	Description string         `yaml:"description,omitempty"`
}

// File is the lumina.tenants.yaml document.
type File struct {
	Tenants []Tenant `yaml:"tenants"`
}

// LoadFile reads the tenants file at path. A missing file yields no tenants.
func LoadFile(path string) ([]Tenant, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", path).Msg("tenants_file_absent")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tenants file %s: %w", path, err)
	}
	return Parse(content)
}

// Parse decodes and validates a tenants document.
func Parse(content []byte) ([]Tenant, error) {
	var f File
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parsing tenants YAML: %w", err)
	}

	seen := make(map[string]bool, len(f.Tenants))
	for i, t := range f.Tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("tenants[%d]: id is required", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("tenant %s declared twice", t.ID)
		}
		seen[t.ID] = true
		if t.RateLimit < 0 || t.DailyRunLimit < 0 {
			return nil, fmt.Errorf("tenant %s: limits must not be negative", t.ID)
		}
		for j, s := range t.Schedules {
			if s.Cron == "" {
				return nil, fmt.Errorf("tenant %s schedules[%d]: cron is required", t.ID, j)
			}
			if _, err := agent.ParseType(s.AgentType); err != nil {
				return nil, fmt.Errorf("tenant %s schedules[%d]: %w", t.ID, j, err)
			}
			if action, _ := s.Input["action"].(string); action == "" {
				return nil, fmt.Errorf("tenant %s schedules[%d]: input.action is required", t.ID, j)
			}
		}
	}
	return f.Tenants, nil
}
