package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newPrinterCmd(a *app) *cobra.Command {
	printerCmd := &cobra.Command{
		Use:   "printer",
		Short: "Direct device control",
	}

	var fresh bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report device status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.invoke(cmd, "printer.status", map[string]any{"fresh": fresh}, true)
		},
	}
	statusCmd.Flags().BoolVar(&fresh, "fresh", false, "request a full report before reading")

	var output string
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture one camera frame",
		RunE: func(cmd *cobra.Command, _ []string) error {
			args := map[string]any{}
			if output != "" {
				args["output"] = output
			}
			// Camera channel only; no control session needed.
			return a.invoke(cmd, "printer.capture", args, false)
		},
	}
	captureCmd.Flags().StringVarP(&output, "output", "o", "", "write the frame to this path")

	printerCmd.AddCommand(
		statusCmd,
		captureCmd,
		simpleCmd(a, "stop", "Abort the active print", "printer.stop"),
		simpleCmd(a, "pause", "Pause the active print", "printer.pause"),
		simpleCmd(a, "resume", "Resume a paused print", "printer.resume"),
		simpleCmd(a, "version", "Report device firmware versions", "printer.version"),
		&cobra.Command{
			Use:   "speed <level>",
			Short: "Set the print speed level (1 silent .. 4 ludicrous)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				level, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("speed level %q is not an integer", args[0])
				}
				return a.invoke(cmd, "printer.set_speed", map[string]any{"level": level}, true)
			},
		},
		&cobra.Command{
			Use:   "gcode <line>",
			Short: "Send one raw G-code line",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.invoke(cmd, "printer.gcode", map[string]any{"line": strings.Join(args, " ")}, true)
			},
		},
		&cobra.Command{
			Use:       "light on|off",
			Short:     "Toggle the chamber light",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"on", "off"},
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.invoke(cmd, "printer.set_light", map[string]any{"on": args[0] == "on"}, true)
			},
		},
		&cobra.Command{
			Use:   "tray <slot>",
			Short: "Switch the active filament slot",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				slot, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("tray slot %q is not an integer", args[0])
				}
				return a.invoke(cmd, "printer.change_tray", map[string]any{"slot": slot}, true)
			},
		},
		&cobra.Command{
			Use:   "skip <id>...",
			Short: "Exclude objects from the rest of the print",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids := make([]int, 0, len(args))
				for _, raw := range args {
					id, err := strconv.Atoi(raw)
					if err != nil {
						return fmt.Errorf("object id %q is not an integer", raw)
					}
					ids = append(ids, id)
				}
				return a.invoke(cmd, "printer.skip", map[string]any{"object_ids": ids}, true)
			},
		},
		&cobra.Command{
			Use:   "print <path>",
			Short: "Upload a file and start printing it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.invoke(cmd, "printer.print_file", map[string]any{"path": args[0]}, true)
			},
		},
	)
	return printerCmd
}

func simpleCmd(a *app, use, short, op string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.invoke(cmd, op, nil, true)
		},
	}
}
