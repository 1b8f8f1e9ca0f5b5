package main

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/printforge/printctl/internal/camera"
	"github.com/printforge/printctl/internal/cloud"
	"github.com/printforge/printctl/internal/config"
	"github.com/printforge/printctl/internal/device"
	"github.com/printforge/printctl/internal/logging"
	"github.com/printforge/printctl/internal/monitor"
	"github.com/printforge/printctl/internal/tools"
	"github.com/printforge/printctl/internal/transfer"
	"github.com/printforge/printctl/internal/vision"
)

var errOperationFailed = errors.New("operation failed")

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "printctl",
		Short:         "LAN control and autonomous supervision for a 3D printer",
		Long:          "printctl drives a LAN-mode 3D printer over its control channel, captures camera frames, and can supervise an active print with periodic status and vision checks.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a printctl.toml")

	a := &app{configPath: &configPath}
	root.AddCommand(
		newOpsCmd(a),
		newPrinterCmd(a),
		newMonitorCmd(a),
		newCloudCmd(a),
	)
	return root
}

// app wires the components lazily, after cobra has parsed the persistent
// flags.
type app struct {
	configPath *string

	wireOnce sync.Once
	wireErr  error

	cfg      config.Config
	log      zerolog.Logger
	device   *device.Client
	monitor  *monitor.Monitor
	registry *tools.Registry
}

func (a *app) wire() error {
	a.wireOnce.Do(func() {
		logging.ConfigureRuntime()
		a.log = logging.New("printctl")

		cfg, err := config.Load(*a.configPath)
		if err != nil {
			a.wireErr = err
			return
		}
		a.cfg = cfg

		classifier, err := vision.New(cfg.VisionConfig())
		if err != nil {
			a.wireErr = err
			return
		}
		spool, err := transfer.NewLocalSpool(cfg.Transfer.SpoolDir, a.log)
		if err != nil {
			a.wireErr = err
			return
		}

		a.device = device.New(cfg.DeviceConfig(), a.log, nil)
		cam := camera.NewClient(cfg.CameraConfig(), a.log, nil)
		a.monitor = monitor.New(cfg.MonitorConfig(), a.log, a.device, cam, classifier)

		a.registry, a.wireErr = tools.DefaultRegistry(a.log, tools.Bindings{
			Printer:  a.device,
			Camera:   cam,
			Monitor:  a.monitor,
			Cloud:    cloud.NewClient(cfg.CloudConfig(), a.log),
			Uploader: spool,
		})
	})
	return a.wireErr
}

// invoke runs one registry operation and prints its result as a JSON line.
// withDevice opens the control session for the duration of the call.
func (a *app) invoke(cmd *cobra.Command, name string, args map[string]any, withDevice bool) error {
	if err := a.wire(); err != nil {
		return err
	}
	ctx := cmd.Context()
	if withDevice {
		if err := a.device.Connect(ctx); err != nil {
			return err
		}
		defer a.device.Disconnect()
	}

	res := a.registry.Invoke(ctx, name, args)
	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
		return err
	}
	if !res.OK {
		return errOperationFailed
	}
	return nil
}

func newOpsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List every registered operation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.wire(); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, op := range a.registry.List() {
				if err := enc.Encode(op); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCloudCmd(a *app) *cobra.Command {
	cloudCmd := &cobra.Command{
		Use:   "cloud",
		Short: "Account API operations (best effort)",
	}
	cloudCmd.AddCommand(&cobra.Command{
		Use:   "profile",
		Short: "Show the cloud account profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.invoke(cmd, "cloud.profile", nil, false)
		},
	})
	return cloudCmd
}
