package main

// Blank imports register every module shipped with the standard binary.
// A config only loads the modules it names; the rest stay dormant.
import (
	_ "github.com/parleyhq/parley/internal/gateway"
	_ "github.com/parleyhq/parley/internal/relay"
	_ "github.com/parleyhq/parley/modules/backend/compat"
	_ "github.com/parleyhq/parley/modules/backend/openai"
	_ "github.com/parleyhq/parley/modules/knowledge/mcp"
	_ "github.com/parleyhq/parley/modules/ledger/redis"
	_ "github.com/parleyhq/parley/modules/repository/sqlite"
)
