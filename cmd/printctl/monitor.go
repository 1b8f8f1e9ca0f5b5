package main

import (
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newMonitorCmd(a *app) *cobra.Command {
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Autonomous print supervision",
	}
	monitorCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Supervise the active print until it ends or a signal arrives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMonitor(cmd)
		},
	})
	return monitorCmd
}

// runMonitor keeps the control session open for the whole supervision run:
// start, block until the monitor goes idle on its own or the user
// interrupts, then stop and print the summary.
func (a *app) runMonitor(cmd *cobra.Command) error {
	if err := a.wire(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.device.Connect(ctx); err != nil {
		return err
	}
	defer a.device.Disconnect()

	if res := a.registry.Invoke(ctx, "monitor.start", nil); !res.OK {
		_ = json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		return errOperationFailed
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-ctx.Done():
			a.log.Info().Msg("signal received, stopping monitor")
			break wait
		case <-ticker.C:
			if !a.monitor.State().Active {
				break wait
			}
		}
	}

	res := a.registry.Invoke(cmd.Context(), "monitor.stop", nil)
	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
		return err
	}
	if !res.OK {
		return errOperationFailed
	}
	return nil
}
