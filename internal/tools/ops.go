package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/printforge/printctl/internal/device"
	"github.com/printforge/printctl/internal/monitor"
	"github.com/printforge/printctl/internal/protocol"
	"github.com/printforge/printctl/internal/transfer"
)

// Commander is the slice of the device client the registry drives.
type Commander interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	RequestStatus(ctx context.Context) (protocol.Status, device.CacheInfo, error)
	CachedStatus() (protocol.Status, device.CacheInfo)
	Stop(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetSpeed(ctx context.Context, level int) error
	SendGCode(ctx context.Context, line string) error
	ChangeTray(ctx context.Context, slot int) error
	SkipObjects(ctx context.Context, ids []int) error
	SetLight(ctx context.Context, on bool) error
	StartPrint(ctx context.Context, remoteName string) error
	Version(ctx context.Context) (json.RawMessage, error)
}

// Capturer grabs one camera frame per call.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Supervisor is the monitor lifecycle surface.
type Supervisor interface {
	Start() error
	Stop() (monitor.Summary, error)
	State() monitor.Session
}

// Accounts is the best-effort cloud profile surface.
type Accounts interface {
	ProfileText(ctx context.Context) (string, error)
}

// Bindings collects the collaborators the default operations close over.
type Bindings struct {
	Printer  Commander
	Camera   Capturer
	Monitor  Supervisor
	Cloud    Accounts
	Uploader transfer.Uploader
}

// DefaultRegistry builds the full operation set over the given bindings.
func DefaultRegistry(log zerolog.Logger, b Bindings) (*Registry, error) {
	r := NewRegistry(log)

	type entry struct {
		name   string
		help   string
		params []Param
		run    Handler
	}
	entries := []entry{
		{"printer.connect", "Open the device control session", nil,
			func(ctx context.Context, _ Args) (any, error) {
				return nil, b.Printer.Connect(ctx)
			}},
		{"printer.disconnect", "Close the device control session", nil,
			func(context.Context, Args) (any, error) {
				b.Printer.Disconnect()
				return nil, nil
			}},
		{"printer.status", "Report device status from the session cache",
			[]Param{{Name: "fresh", Type: ParamBool, Help: "request a full report before reading"}},
			func(ctx context.Context, args Args) (any, error) {
				if args.Bool("fresh") {
					status, info, err := b.Printer.RequestStatus(ctx)
					if err != nil {
						return nil, err
					}
					return statusData(status, info), nil
				}
				status, info := b.Printer.CachedStatus()
				return statusData(status, info), nil
			}},
		{"printer.stop", "Abort the active print", nil,
			func(ctx context.Context, _ Args) (any, error) {
				return nil, b.Printer.Stop(ctx)
			}},
		{"printer.pause", "Pause the active print", nil,
			func(ctx context.Context, _ Args) (any, error) {
				return nil, b.Printer.Pause(ctx)
			}},
		{"printer.resume", "Resume a paused print", nil,
			func(ctx context.Context, _ Args) (any, error) {
				return nil, b.Printer.Resume(ctx)
			}},
		{"printer.set_speed", "Set the print speed level",
			[]Param{{Name: "level", Type: ParamInt, Required: true, Help: "1 silent .. 4 ludicrous"}},
			func(ctx context.Context, args Args) (any, error) {
				return nil, b.Printer.SetSpeed(ctx, args.Int("level"))
			}},
		{"printer.gcode", "Send one raw G-code line",
			[]Param{{Name: "line", Type: ParamString, Required: true}},
			func(ctx context.Context, args Args) (any, error) {
				return nil, b.Printer.SendGCode(ctx, args.String("line"))
			}},
		{"printer.set_light", "Toggle the chamber light",
			[]Param{{Name: "on", Type: ParamBool, Required: true}},
			func(ctx context.Context, args Args) (any, error) {
				return nil, b.Printer.SetLight(ctx, args.Bool("on"))
			}},
		{"printer.change_tray", "Switch the active filament slot",
			[]Param{{Name: "slot", Type: ParamInt, Required: true}},
			func(ctx context.Context, args Args) (any, error) {
				return nil, b.Printer.ChangeTray(ctx, args.Int("slot"))
			}},
		{"printer.skip", "Exclude objects from the rest of the print",
			[]Param{{Name: "object_ids", Type: ParamIntList, Required: true}},
			func(ctx context.Context, args Args) (any, error) {
				return nil, b.Printer.SkipObjects(ctx, args.IntList("object_ids"))
			}},
		{"printer.print_file", "Upload a file and start printing it",
			[]Param{{Name: "path", Type: ParamString, Required: true, Help: "local file path"}},
			func(ctx context.Context, args Args) (any, error) {
				remote, err := b.Uploader.Upload(ctx, args.String("path"))
				if err != nil {
					return nil, err
				}
				if err := b.Printer.StartPrint(ctx, remote); err != nil {
					return nil, err
				}
				return map[string]any{"remote_name": remote}, nil
			}},
		{"printer.version", "Report device firmware and module versions", nil,
			func(ctx context.Context, _ Args) (any, error) {
				return b.Printer.Version(ctx)
			}},
		{"printer.capture", "Capture one camera frame",
			[]Param{{Name: "output", Type: ParamString, Help: "write the frame to this path"}},
			func(ctx context.Context, args Args) (any, error) {
				frame, err := b.Camera.Capture(ctx)
				if err != nil {
					return nil, err
				}
				data := map[string]any{"bytes": len(frame)}
				if out := args.String("output"); out != "" {
					if err := os.WriteFile(out, frame, 0o644); err != nil {
						return nil, fmt.Errorf("write frame: %w", err)
					}
					data["output"] = out
				}
				return data, nil
			}},
		{"monitor.start", "Start autonomous print supervision", nil,
			func(context.Context, Args) (any, error) {
				return nil, b.Monitor.Start()
			}},
		{"monitor.stop", "Stop supervision and report the run summary", nil,
			func(context.Context, Args) (any, error) {
				return b.Monitor.Stop()
			}},
		{"monitor.state", "Report the current supervision session", nil,
			func(context.Context, Args) (any, error) {
				return sessionData(b.Monitor.State()), nil
			}},
		{"cloud.profile", "Show the cloud account profile, best effort", nil,
			func(ctx context.Context, _ Args) (any, error) {
				text, err := b.Cloud.ProfileText(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"profile": text}, nil
			}},
	}

	for _, e := range entries {
		if err := r.Register(e.name, e.help, e.params, e.run); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// statusData flattens the pointer-field status into display form, omitting
// fields the device has not reported.
func statusData(status protocol.Status, info device.CacheInfo) map[string]any {
	data := map[string]any{
		"connected_cache": info.HasData,
		"state":           status.State().String(),
	}
	if info.HasData {
		data["cache_age_ms"] = info.Age.Milliseconds()
	}
	put(data, "percent", status.Percent)
	put(data, "layer", status.Layer)
	put(data, "total_layers", status.TotalLayers)
	put(data, "remaining_min", status.RemainingMin)
	put(data, "nozzle_temp", status.NozzleTemp)
	put(data, "nozzle_target", status.NozzleTarget)
	put(data, "bed_temp", status.BedTemp)
	put(data, "bed_target", status.BedTarget)
	put(data, "speed_level", status.Speed)
	put(data, "file", status.File)
	put(data, "error_code", status.PrintError)
	if status.Feed != nil {
		data["active_tray"] = status.Feed.TrayNow
	}
	return data
}

func sessionData(s monitor.Session) map[string]any {
	data := map[string]any{
		"session_id":       s.ID,
		"active":           s.Active,
		"cycles":           s.Cycles,
		"strikes":          s.Strikes,
		"failure_detected": s.FailureDetected,
		"last_state":       s.LastState.String(),
		"last_percent":     s.LastPercent,
		"last_layer":       s.LastLayer,
		"errors":           len(s.Errors),
	}
	if s.Reason != "" {
		data["reason"] = s.Reason
	}
	if s.LastVerdict != nil {
		data["last_verdict_failed"] = s.LastVerdict.Failed
		data["last_verdict_reason"] = s.LastVerdict.Reason
	}
	return data
}

func put[T any](data map[string]any, key string, p *T) {
	if p != nil {
		data[key] = *p
	}
}
