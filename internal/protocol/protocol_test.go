package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/printforge/printctl/internal/testutil/testlog"
)

func TestBuildCommandEnvelopeShape(t *testing.T) {
	testlog.Start(t)
	cmd, err := BuildCommand(CmdSetSpeed, 7, map[string]any{"param": "2"})
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	if cmd.Family != FamilyPrint || cmd.Name != "print_speed" || !cmd.Expects {
		t.Fatalf("unexpected command mapping: %+v", cmd)
	}

	var envelope map[string]map[string]any
	if err := json.Unmarshal(cmd.Payload(), &envelope); err != nil {
		t.Fatalf("payload not valid json: %v", err)
	}
	body, ok := envelope["print"]
	if !ok {
		t.Fatalf("missing print family: %v", envelope)
	}
	if body["command"] != "print_speed" || body["sequence_id"] != "7" || body["param"] != "2" {
		t.Fatalf("unexpected envelope body: %v", body)
	}
}

func TestBuildCommandUnknownKind(t *testing.T) {
	testlog.Start(t)
	if _, err := BuildCommand(CommandKind(99), 1, nil); !errors.Is(err, ErrUnknownCommandKind) {
		t.Fatalf("expected ErrUnknownCommandKind, got %v", err)
	}
}

func TestCommandTableExhaustive(t *testing.T) {
	testlog.Start(t)
	kinds := []CommandKind{
		CmdStop, CmdPause, CmdResume, CmdSetSpeed, CmdGCodeLine,
		CmdChangeTray, CmdSkipObjects, CmdSetLight, CmdPushAll,
		CmdStartPrint, CmdGetVersion,
	}
	for _, kind := range kinds {
		family, name, _, err := Spec(kind)
		if err != nil {
			t.Fatalf("kind %d unmapped: %v", kind, err)
		}
		if family == "" || name == "" {
			t.Fatalf("kind %d has empty mapping", kind)
		}
	}
	// pushall is the one command the device never correlates
	if _, _, expects, _ := Spec(CmdPushAll); expects {
		t.Fatalf("pushall must not expect a correlated response")
	}
}

func TestParseSequenceID(t *testing.T) {
	testlog.Start(t)
	id, err := ParseSequenceID("42")
	if err != nil || id != 42 {
		t.Fatalf("parse got id=%d err=%v", id, err)
	}
	if _, err := ParseSequenceID("nope"); !errors.Is(err, ErrInvalidSequenceID) {
		t.Fatalf("expected ErrInvalidSequenceID, got %v", err)
	}
}

func TestParseReportStatusSubObject(t *testing.T) {
	testlog.Start(t)
	payload := []byte(`{"print":{"command":"push_status","sequence_id":"2021","gcode_state":"RUNNING","mc_percent":37,"layer_num":12,"print_error":0}}`)
	rep, err := ParseReport(payload)
	if err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if rep.Family != FamilyPrint || rep.Command != "push_status" || rep.SequenceID != "2021" {
		t.Fatalf("unexpected report meta: %+v", rep)
	}
	if rep.Status == nil {
		t.Fatalf("expected status sub-object")
	}
	if rep.Status.State() != StateRunning || *rep.Status.Percent != 37 || *rep.Status.Layer != 12 {
		t.Fatalf("unexpected status: %+v", rep.Status)
	}
}

func TestParseReportUnrecognizedPayloads(t *testing.T) {
	testlog.Start(t)
	if _, err := ParseReport([]byte(`   `)); !errors.Is(err, ErrEmptyReport) {
		t.Fatalf("expected ErrEmptyReport, got %v", err)
	}
	if _, err := ParseReport([]byte(`{"mcu":{"command":"x"}}`)); !errors.Is(err, ErrNotAReport) {
		t.Fatalf("expected ErrNotAReport, got %v", err)
	}
	if _, err := ParseReport([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error for malformed payload")
	}
}

func TestMergeShallowKeepsAbsentFields(t *testing.T) {
	testlog.Start(t)
	state := "RUNNING"
	pct := 10
	nozzle := 220.5
	var merged Status
	merged.Merge(Status{GCodeState: &state, Percent: &pct, NozzleTemp: &nozzle})

	pct2 := 11
	merged.Merge(Status{Percent: &pct2})

	if *merged.GCodeState != "RUNNING" {
		t.Fatalf("absent field overwritten: %+v", merged)
	}
	if *merged.Percent != 11 {
		t.Fatalf("present field not overwritten: %+v", merged)
	}
	if *merged.NozzleTemp != 220.5 {
		t.Fatalf("absent field overwritten: %+v", merged)
	}
}

// Replaying a report sequence must equal the iterative shallow merge in
// arrival order, however the sequence is sliced.
func TestMergeReplayEqualsIterativeMerge(t *testing.T) {
	testlog.Start(t)
	reports := []string{
		`{"print":{"gcode_state":"RUNNING","mc_percent":1,"layer_num":1}}`,
		`{"print":{"nozzle_temper":219.8,"bed_temper":55.0}}`,
		`{"print":{"mc_percent":2}}`,
		`{"print":{"gcode_state":"PAUSE","print_error":0}}`,
		`{"print":{"mc_percent":3,"layer_num":2,"nozzle_temper":220.1}}`,
	}

	var all Status
	for _, raw := range reports {
		rep, err := ParseReport([]byte(raw))
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		all.Merge(*rep.Status)
	}

	var split Status
	for _, group := range [][]string{reports[:2], reports[2:4], reports[4:]} {
		for _, raw := range group {
			rep, _ := ParseReport([]byte(raw))
			split.Merge(*rep.Status)
		}
	}

	allJSON, _ := json.Marshal(all)
	splitJSON, _ := json.Marshal(split)
	if string(allJSON) != string(splitJSON) {
		t.Fatalf("replay mismatch:\n%s\n%s", allJSON, splitJSON)
	}
	if split.State() != StatePaused || *split.Percent != 3 || *split.Layer != 2 {
		t.Fatalf("unexpected merged status: %s", splitJSON)
	}
}

func TestStatusCloneIsDeep(t *testing.T) {
	testlog.Start(t)
	pct := 50
	status := Status{
		Percent: &pct,
		Feed:    &FeedState{TrayNow: "0", Units: []FeedUnit{{ID: "0", Trays: []Tray{{ID: "0", Type: "PLA"}}}}},
		Lights:  []Light{{Node: "chamber_light", Mode: "on"}},
	}
	clone := status.Clone()

	*status.Percent = 99
	status.Feed.TrayNow = "3"
	status.Lights[0].Mode = "off"

	if *clone.Percent != 50 || clone.Feed.TrayNow != "0" || clone.Lights[0].Mode != "on" {
		t.Fatalf("clone shares memory with source: %+v", clone)
	}
}

func TestParsePrintState(t *testing.T) {
	testlog.Start(t)
	cases := map[string]PrintState{
		"RUNNING": StateRunning,
		"PAUSE":   StatePaused,
		"FAILED":  StateFailed,
		"FINISH":  StateFinished,
		"IDLE":    StateIdle,
		"weird":   StateUnknown,
	}
	for raw, want := range cases {
		if got := ParsePrintState(raw); got != want {
			t.Fatalf("state %q got=%v want=%v", raw, got, want)
		}
	}
}
