// Package redis implements the credit ledger on Redis for deployments
// where balances are shared with an external top-up service. Deductions
// run as a Lua script so decrement-with-floor stays atomic across
// concurrent engine instances.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/billing"
	"github.com/parleyhq/parley/internal/core"
)

func init() {
	core.RegisterModule(&Ledger{})
}

// deductScript removes up to ARGV[1] credits without taking the balance
// below zero, and returns the amount actually removed.
var deductScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local deducted = amount
if deducted > balance then
	deducted = balance
end
if deducted > 0 then
	redis.call('DECRBY', KEYS[1], deducted)
end
return deducted
`)

// Config holds the Redis ledger configuration.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix namespaces ledger keys. Defaults to "parley:credits".
	KeyPrefix string `yaml:"key_prefix"`

	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "parley:credits"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if c.DB < 0 {
		return fmt.Errorf("ledger.redis: db must be non-negative, got %d", c.DB)
	}
	return nil
}

// Ledger is the Redis-backed billing ledger module.
type Ledger struct {
	config Config
	client *redis.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (l *Ledger) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "ledger.redis",
		New: func() core.Module { return &Ledger{} },
	}
}

// Configure implements core.Configurable.
func (l *Ledger) Configure(node *yaml.Node) error {
	if err := node.Decode(&l.config); err != nil {
		return fmt.Errorf("ledger.redis: decode config: %w", err)
	}
	l.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (l *Ledger) Provision(ctx *core.AppContext) error {
	l.logger = ctx.Logger
	l.client = redis.NewClient(&redis.Options{
		Addr:        l.config.Addr,
		Username:    l.config.Username,
		Password:    l.config.Password,
		DB:          l.config.DB,
		DialTimeout: l.config.DialTimeout,
	})
	ctx.RegisterService("ledger", l)
	return nil
}

// Validate implements core.Validator.
func (l *Ledger) Validate() error {
	return l.config.validate()
}

// Start implements core.Starter. Connectivity is verified here rather
// than at Provision so config errors surface before network ones.
func (l *Ledger) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.config.DialTimeout)
	defer cancel()

	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ledger.redis: ping %s: %w", l.config.Addr, err)
	}
	l.logger.Info("redis ledger connected", "addr", l.config.Addr, "db", l.config.DB)
	return nil
}

// Stop implements core.Stopper.
func (l *Ledger) Stop(_ context.Context) error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// key builds the balance key for a (user, guild) pair.
func (l *Ledger) key(userID, guildID string) string {
	return l.config.KeyPrefix + ":" + guildID + ":" + userID
}

// Balance implements billing.Ledger. A missing key reads as zero.
func (l *Ledger) Balance(ctx context.Context, userID, guildID string) (int64, error) {
	balance, err := l.client.Get(ctx, l.key(userID, guildID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger.redis: balance: %w", err)
	}
	return balance, nil
}

// Deduct implements billing.Ledger via the atomic clamp script.
func (l *Ledger) Deduct(ctx context.Context, userID, guildID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}

	deducted, err := deductScript.Run(ctx, l.client, []string{l.key(userID, guildID)}, amount).Int64()
	if err != nil {
		return 0, fmt.Errorf("ledger.redis: deduct: %w", err)
	}
	return deducted, nil
}

// Credit implements billing.Ledger. Negative amounts are ignored.
func (l *Ledger) Credit(ctx context.Context, userID, guildID string, amount int64) (int64, error) {
	if amount <= 0 {
		return l.Balance(ctx, userID, guildID)
	}

	balance, err := l.client.IncrBy(ctx, l.key(userID, guildID), amount).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger.redis: credit: %w", err)
	}
	return balance, nil
}

// Compile-time interface guards.
var (
	_ core.Module       = (*Ledger)(nil)
	_ core.Configurable = (*Ledger)(nil)
	_ core.Provisioner  = (*Ledger)(nil)
	_ core.Validator    = (*Ledger)(nil)
	_ core.Starter      = (*Ledger)(nil)
	_ core.Stopper      = (*Ledger)(nil)
	_ billing.Ledger    = (*Ledger)(nil)
)
