package redis

import (
	"context"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLedger_ModuleInfo(t *testing.T) {
	t.Parallel()

	l := &Ledger{}
	info := l.ModuleInfo()
	if info.ID != "ledger.redis" {
		t.Errorf("ID = %q, want %q", info.ID, "ledger.redis")
	}
	if _, ok := info.New().(*Ledger); !ok {
		t.Error("New() should return *Ledger")
	}
}

func TestLedger_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("{}"), &node); err != nil {
		t.Fatalf("parse yaml: %v", err)
	}

	l := &Ledger{}
	if err := l.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if l.config.Addr != "127.0.0.1:6379" {
		t.Errorf("Addr = %q, want default", l.config.Addr)
	}
	if l.config.KeyPrefix != "parley:credits" {
		t.Errorf("KeyPrefix = %q, want default", l.config.KeyPrefix)
	}
	if l.config.DialTimeout != 5*time.Second {
		t.Errorf("DialTimeout = %v, want 5s", l.config.DialTimeout)
	}
}

func TestLedger_ConfigureCustom(t *testing.T) {
	t.Parallel()

	raw := "addr: \"redis.internal:6380\"\ndb: 3\nkey_prefix: \"billing:v2\"\n"
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		t.Fatalf("parse yaml: %v", err)
	}

	l := &Ledger{}
	if err := l.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if l.config.Addr != "redis.internal:6380" || l.config.DB != 3 {
		t.Errorf("config = %+v", l.config)
	}
}

func TestLedger_ValidateNegativeDB(t *testing.T) {
	t.Parallel()

	l := &Ledger{config: Config{DB: -1}}
	if err := l.Validate(); err == nil {
		t.Error("expected validation error for negative db")
	}
}

func TestLedger_KeyBuilding(t *testing.T) {
	t.Parallel()

	l := &Ledger{config: Config{KeyPrefix: "parley:credits"}}

	tests := []struct {
		userID  string
		guildID string
		want    string
	}{
		{"u1", "g1", "parley:credits:g1:u1"},
		{"u1", "", "parley:credits::u1"},
	}
	for _, tt := range tests {
		if got := l.key(tt.userID, tt.guildID); got != tt.want {
			t.Errorf("key(%q, %q) = %q, want %q", tt.userID, tt.guildID, got, tt.want)
		}
	}
}

func TestLedger_DeductNonPositiveShortCircuits(t *testing.T) {
	t.Parallel()

	// No server configured: a non-positive amount must never reach the
	// network.
	l := &Ledger{config: Config{KeyPrefix: "parley:credits"}}

	for _, amount := range []int64{0, -10} {
		deducted, err := l.Deduct(context.Background(), "u1", "g1", amount)
		if err != nil {
			t.Errorf("Deduct(%d): %v", amount, err)
		}
		if deducted != 0 {
			t.Errorf("Deduct(%d) = %d, want 0", amount, deducted)
		}
	}
}
