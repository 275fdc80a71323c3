package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// Called after instantiation and before Provision(). The node holds the
// raw YAML of this module's entry under the top-level modules map.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup after
// configuration: opening databases, building HTTP clients, registering
// services for other modules to discover.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can verify their configuration
// is complete and correct. Called after Provision(). Validate should be
// read-only; side effects belong in Provision or Start.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that run background work: listeners,
// pollers, sweepers, outbound connections. Called after every module is
// provisioned and validated, so service lookups resolve regardless of
// load order.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that hold resources. Called during
// shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader is implemented by modules that support live configuration
// reload. Modules without it keep running on their old config when a
// reload happens.
type Reloader interface {
	Reload(ctx *AppContext) error
}
