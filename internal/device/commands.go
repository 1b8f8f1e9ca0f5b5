package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/printforge/printctl/internal/protocol"
)

// Speed levels accepted by the device.
const (
	SpeedSilent    = 1
	SpeedStandard  = 2
	SpeedSport     = 3
	SpeedLudicrous = 4
)

// Stop aborts the active print. Safe to re-issue.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdStop, map[string]any{"param": ""})
	return err
}

// Pause suspends the active print.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdPause, map[string]any{"param": ""})
	return err
}

// Resume continues a paused print.
func (c *Client) Resume(ctx context.Context) error {
	_, err := c.SendCommand(ctx, protocol.CmdResume, map[string]any{"param": ""})
	return err
}

// SetSpeed selects a print speed level, 1 (silent) through 4 (ludicrous).
func (c *Client) SetSpeed(ctx context.Context, level int) error {
	if level < SpeedSilent || level > SpeedLudicrous {
		return fmt.Errorf("%w: speed level %d out of range 1-4", ErrInvalidConfig, level)
	}
	_, err := c.SendCommand(ctx, protocol.CmdSetSpeed, map[string]any{"param": strconv.Itoa(level)})
	return err
}

// SendGCode sends one raw G-code line to the device.
func (c *Client) SendGCode(ctx context.Context, line string) error {
	_, err := c.SendCommand(ctx, protocol.CmdGCodeLine, map[string]any{"param": line + "\n"})
	return err
}

// ChangeTray switches the active filament slot of the feed module.
func (c *Client) ChangeTray(ctx context.Context, slot int) error {
	if slot < 0 {
		return fmt.Errorf("%w: tray slot %d", ErrInvalidConfig, slot)
	}
	_, err := c.SendCommand(ctx, protocol.CmdChangeTray, map[string]any{"target": slot})
	return err
}

// SkipObjects excludes the given object ids from the rest of the print.
func (c *Client) SkipObjects(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no object ids", ErrInvalidConfig)
	}
	_, err := c.SendCommand(ctx, protocol.CmdSkipObjects, map[string]any{"obj_list": ids})
	return err
}

// SetLight toggles the chamber light.
func (c *Client) SetLight(ctx context.Context, on bool) error {
	mode := "off"
	if on {
		mode = "on"
	}
	_, err := c.SendCommand(ctx, protocol.CmdSetLight, map[string]any{
		"led_node": "chamber_light",
		"led_mode": mode,
	})
	return err
}

// StartPrint begins printing a file previously uploaded to the device's
// removable storage under remoteName.
func (c *Client) StartPrint(ctx context.Context, remoteName string) error {
	if remoteName == "" {
		return fmt.Errorf("%w: empty remote file name", ErrInvalidConfig)
	}
	_, err := c.SendCommand(ctx, protocol.CmdStartPrint, map[string]any{
		"url":          "ftp:///" + remoteName,
		"subtask_name": remoteName,
		"use_ams":      true,
	})
	return err
}

// Version returns the device's firmware/module version report.
func (c *Client) Version(ctx context.Context) (json.RawMessage, error) {
	return c.SendCommand(ctx, protocol.CmdGetVersion, nil)
}
