package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/pkg/app"
)

const stopGrace = 30 * time.Second

// program adapts the blocking app.Run loop to the service manager's
// non-blocking Start/Stop contract.
type program struct {
	params app.RunParams
	done   chan struct{}
}

// Start implements service.Interface. It must not block.
func (p *program) Start(_ service.Service) error {
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		if err := app.Run(p.params); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}()
	return nil
}

// Stop implements service.Interface. app.Run owns the signal handling,
// so stopping means delivering the same interrupt a terminal would and
// waiting for the run loop to drain.
func (p *program) Stop(_ service.Service) error {
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return err
	}
	select {
	case <-p.done:
	case <-time.After(stopGrace):
	}
	return nil
}

func newService(cfgPath string) (service.Service, error) {
	args := []string{"service", "run"}
	if cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}

	prg := &program{params: app.RunParams{
		ConfigPath: cfgPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}}
	return service.New(prg, &service.Config{
		Name:        "parley",
		DisplayName: "Parley",
		Description: "Conversation orchestration engine for chat-platform assistants",
		Arguments:   args,
	})
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run or manage parley as a system service",
	}

	var cfgPath string
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run under the service manager (invoked by the manager itself)",
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := newService(cfgPath)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			RunE: func(_ *cobra.Command, _ []string) error {
				svc, err := newService(cfgPath)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Printf("Service %s: done\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report the system service status",
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := newService(cfgPath)
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if err != nil {
				return err
			}
			switch status {
			case service.StatusRunning:
				fmt.Println("running")
			case service.StatusStopped:
				fmt.Println("stopped")
			default:
				fmt.Println("unknown")
			}
			return nil
		},
	})

	return cmd
}
