package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"canvasdatasync/controller"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// continuation is the one-shot Reinvoker: the command starts the next pass itself.
type continuation struct {
	event   json.RawMessage
	pending bool
}

func (c *continuation) Reinvoke(_ context.Context, event json.RawMessage) error {
	c.event = event
	c.pending = true
	return nil
}

// take reports whether a continuation was requested and clears it.
func (c *continuation) take() (json.RawMessage, bool) {
	pending := c.pending
	c.pending = false
	return c.event, pending
}

// runUntilComplete runs passes, each with its own budget, until one finishes without handing over.
func runUntilComplete(ctx context.Context, c *controller.Controller, next *continuation,
	newDeadline func() controller.Deadline) (passes int, summary controller.Summary, err error) {
	event := json.RawMessage(`{"source":"canvasdata.cli"}`)
	for {
		passes++
		summary, err = c.Run(ctx, event, newDeadline())
		if err != nil {
			return passes, summary, err
		}
		var pending bool
		if event, pending = next.take(); !pending {
			return passes, summary, nil
		}
		log.Info("Continuing with another pass", zap.Int("passes", passes))
	}
}

func newSyncCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run sync passes until the mirror and the catalog are up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conf, err := opts.loadConfig(ctx)
			if err != nil {
				return err
			}
			svc, err := newServices(ctx, conf)
			if err != nil {
				return err
			}

			next := &continuation{}
			c := svc.controller(next)
			if svc.local != nil {
				svc.local.Start(ctx)
			}
			passes, summary, err := runUntilComplete(ctx, c, next, func() controller.Deadline {
				return controller.BudgetDeadline(conf.PassTimeout)
			})
			svc.closeLocal()
			if err != nil {
				return err
			}

			message, err := controller.FormatSummary(summary)
			if err != nil {
				return err
			}
			log.Debug("Sync complete", zap.Int("passes", passes))
			_, _ = fmt.Fprintln(os.Stdout, message)
			return nil
		},
	}
	cmd.Flags().DurationVar(&opts.overrides.PassTimeout, "pass-timeout", 0, "wall-clock budget of one pass (pass_timeout)")
	return cmd
}
