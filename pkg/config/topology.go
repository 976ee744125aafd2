package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Budget identifies the personal budget and its currency.
type Budget struct {
	BudgetID string `yaml:"budget_id"`
	Currency string `yaml:"currency"`
}

// Company identifies one organizational budget.
type Company struct {
	BudgetID string `yaml:"budget_id"`
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

// Topology declares the synced budgets and the dedup tolerances.
type Topology struct {
	Personal            Budget    `yaml:"personal"`
	Companies           []Company `yaml:"companies"`
	MatchWindowDays     int       `yaml:"match_window_days"`
	MatchAmountSlackPct float64   `yaml:"match_amount_slack_pct"`
}

// LoadTopology reads a topology YAML file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}

	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if topo.Personal.BudgetID == "" {
		return nil, fmt.Errorf("topology: personal.budget_id is required")
	}
	if topo.Personal.Currency == "" {
		return nil, fmt.Errorf("topology: personal.currency is required")
	}
	for i, c := range topo.Companies {
		if c.BudgetID == "" || c.Currency == "" {
			return nil, fmt.Errorf("topology: companies[%d] needs budget_id and currency", i)
		}
	}

	if topo.MatchWindowDays <= 0 {
		topo.MatchWindowDays = 2
	}
	if topo.MatchAmountSlackPct <= 0 {
		topo.MatchAmountSlackPct = 0.02
	}

	return &topo, nil
}
