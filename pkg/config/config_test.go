package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("LEDGER_API_URL")
	os.Unsetenv("LEDGER_ACCESS_TOKEN")
	os.Unsetenv("LEDGER_API_TIMEOUT_SECONDS")
	os.Unsetenv("BRIDGE_DB_PATH")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ledger.APIURL != "http://localhost:8080" {
		t.Errorf("APIURL = %q, want default", cfg.Ledger.APIURL)
	}
	if cfg.Ledger.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d, want 30", cfg.Ledger.TimeoutSeconds)
	}
	if cfg.DBPath != "./data/ledger-bridge.db" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LEDGER_API_URL", "https://api.example.com")
	t.Setenv("LEDGER_ACCESS_TOKEN", "tok-123")
	t.Setenv("LEDGER_API_TIMEOUT_SECONDS", "5")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ledger.APIURL != "https://api.example.com" {
		t.Errorf("APIURL = %q", cfg.Ledger.APIURL)
	}
	if cfg.Ledger.AccessToken != "tok-123" {
		t.Errorf("AccessToken = %q", cfg.Ledger.AccessToken)
	}
	if cfg.Ledger.TimeoutSeconds != 5 {
		t.Errorf("TimeoutSeconds = %d", cfg.Ledger.TimeoutSeconds)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
}

func TestLoadInvalidTimeout(t *testing.T) {
	t.Setenv("LEDGER_API_TIMEOUT_SECONDS", "not-a-number")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail on a non-integer timeout")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Ledger: LedgerConfig{APIURL: "http://localhost:8080"},
		DBPath: "./data/bridge.db",
	}

	if err := cfg.Validate("ledger.apiUrl", "dbPath"); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := cfg.Validate("ledger.accessToken"); err == nil {
		t.Error("Validate() should report the missing access token")
	}
}

func TestLoadTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	content := `personal:
  budget_id: "budget-personal"
  currency: "EUR"
companies:
  - budget_id: "budget-co"
    name: "Acme"
    currency: "USD"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	topo, err := LoadTopology(path)
	if err != nil {
		t.Fatalf("LoadTopology() error = %v", err)
	}

	if topo.Personal.BudgetID != "budget-personal" {
		t.Errorf("Personal.BudgetID = %q", topo.Personal.BudgetID)
	}
	if len(topo.Companies) != 1 || topo.Companies[0].Currency != "USD" {
		t.Errorf("Companies = %+v", topo.Companies)
	}
	if topo.MatchWindowDays != 2 {
		t.Errorf("MatchWindowDays = %d, want default 2", topo.MatchWindowDays)
	}
	if topo.MatchAmountSlackPct != 0.02 {
		t.Errorf("MatchAmountSlackPct = %v, want default 0.02", topo.MatchAmountSlackPct)
	}
}

func TestLoadTopologyMissingPersonal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	if err := os.WriteFile(path, []byte("companies: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTopology(path); err == nil {
		t.Error("LoadTopology() should require personal.budget_id")
	}
}
