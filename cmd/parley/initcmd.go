package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/internal/config"
)

// initAnswers collects the wizard's output before rendering YAML.
type initAnswers struct {
	BackendKind string
	BackendName string
	BaseURL     string
	APIKey      string
	Model       string
	Threads     bool

	GatewayBind string
	RelayToken  string
	Persist     bool
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Generate a configuration file interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "parley.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := initAnswers{
				BackendKind: "backend.openai",
				Model:       "gpt-4o-mini",
				GatewayBind: "127.0.0.1:8080",
				Persist:     true,
			}
			if err := initForm(&answers).Run(); err != nil {
				return err
			}

			raw, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0o600); err != nil {
				return err
			}

			// Round-trip through the loader so the wizard never emits a
			// config that `parley start` would reject.
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("generated config does not load: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("generated config does not validate: %w", err)
			}

			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM backend").
				Options(
					huh.NewOption("OpenAI (chat + threads)", "backend.openai"),
					huh.NewOption("OpenAI-compatible endpoint (chat only)", "backend.compat"),
				).
				Value(&a.BackendKind),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
			huh.NewInput().
				Title("Model").
				Value(&a.Model),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Backend name").
				Description("Registry name for this backend, e.g. groq or vllm.").
				Value(&a.BackendName),
			huh.NewInput().
				Title("Base URL").
				Description("OpenAI-compatible API root, e.g. https://api.groq.com/openai/v1").
				Value(&a.BaseURL),
		).WithHideFunc(func() bool { return a.BackendKind != "backend.compat" }),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable thread mode?").
				Description("Server-side conversation state for backends that support it.").
				Value(&a.Threads),
		).WithHideFunc(func() bool { return a.BackendKind != "backend.openai" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway bind address").
				Value(&a.GatewayBind),
			huh.NewInput().
				Title("Relay token").
				Description("Shared secret for WebSocket relay clients. Empty disables the relay.").
				EchoMode(huh.EchoModePassword).
				Value(&a.RelayToken),
			huh.NewConfirm().
				Title("Persist conversations to SQLite?").
				Value(&a.Persist),
		),
	)
}

// renderConfig builds the YAML document from wizard answers.
func renderConfig(a initAnswers) ([]byte, error) {
	modules := map[string]any{
		"gateway.http": map[string]any{
			"bind": a.GatewayBind,
		},
	}

	switch a.BackendKind {
	case "backend.compat":
		modules["backend.compat"] = map[string]any{
			"name":     a.BackendName,
			"base_url": a.BaseURL,
			"api_key":  a.APIKey,
			"model":    a.Model,
		}
	default:
		modules["backend.openai"] = map[string]any{
			"api_key": a.APIKey,
			"model":   a.Model,
		}
	}

	if a.RelayToken != "" {
		modules["relay.ws"] = map[string]any{
			"tokens": []string{a.RelayToken},
		}
	}
	if a.Persist {
		modules["repository.sqlite"] = map[string]any{}
	}

	doc := map[string]any{
		"version": "1",
		"backend": map[string]any{
			"threads": a.Threads,
		},
		"modules": modules,
	}
	return yaml.Marshal(doc)
}
