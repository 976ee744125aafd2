package rates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAndLookup(t *testing.T) {
	content := `rates:
  2026-01:
    EUR:
      USD: "1.05"
  2026-02:
    EUR:
      USD: "1.08"
    GBP:
      USD: "1.27"
`
	path := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write rate file: %v", err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name     string
		month    string
		from, to string
		expected string
		missing  bool
	}{
		{"january pair", "2026-01", "EUR", "USD", "1.05", false},
		{"february pair", "2026-02", "EUR", "USD", "1.08", false},
		{"second pair", "2026-02", "GBP", "USD", "1.27", false},
		{"same currency", "2026-03", "USD", "USD", "1", false},
		{"missing month", "2026-03", "EUR", "USD", "", true},
		{"missing pair", "2026-01", "CHF", "USD", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := table.Rate(tt.month, tt.from, tt.to)
			if tt.missing {
				if !errors.Is(err, ErrRateUnavailable) {
					t.Errorf("Rate() error = %v, expected ErrRateUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Rate() error = %v", err)
			}
			if rate.String() != tt.expected {
				t.Errorf("Rate() = %s, expected %s", rate.String(), tt.expected)
			}
		})
	}
}

func TestInversePairFallback(t *testing.T) {
	table, err := NewTable(map[string]map[string]string{
		"2026-01": {"EUR/USD": "1.25"},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	rate, err := table.Rate("2026-01", "USD", "EUR")
	if err != nil {
		t.Fatalf("Rate() error = %v", err)
	}
	if rate.String() != "0.8" {
		t.Errorf("inverse rate = %s, expected 0.8", rate.String())
	}
}

func TestLoadRejectsMalformedRate(t *testing.T) {
	content := `rates:
  2026-01:
    EUR:
      USD: "one point five"
`
	path := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write rate file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for malformed rate, got nil")
	}
}
