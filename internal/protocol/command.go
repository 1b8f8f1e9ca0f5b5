package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CommandKind enumerates every request the client can issue. Kinds are
// resolved against the command table at envelope construction, so an
// unknown kind fails before anything touches the wire.
type CommandKind int

const (
	CmdStop CommandKind = iota
	CmdPause
	CmdResume
	CmdSetSpeed
	CmdGCodeLine
	CmdChangeTray
	CmdSkipObjects
	CmdSetLight
	CmdPushAll
	CmdStartPrint
	CmdGetVersion
)

// Families are the top-level namespaces of the device envelope. A response
// to a command arrives under the same family key the command was sent in.
const (
	FamilyPrint   = "print"
	FamilySystem  = "system"
	FamilyPushing = "pushing"
	FamilyInfo    = "info"
)

type commandSpec struct {
	Family          string
	Name            string
	ExpectsResponse bool
}

var commandTable = map[CommandKind]commandSpec{
	CmdStop:        {Family: FamilyPrint, Name: "stop", ExpectsResponse: true},
	CmdPause:       {Family: FamilyPrint, Name: "pause", ExpectsResponse: true},
	CmdResume:      {Family: FamilyPrint, Name: "resume", ExpectsResponse: true},
	CmdSetSpeed:    {Family: FamilyPrint, Name: "print_speed", ExpectsResponse: true},
	CmdGCodeLine:   {Family: FamilyPrint, Name: "gcode_line", ExpectsResponse: true},
	CmdChangeTray:  {Family: FamilyPrint, Name: "ams_change_filament", ExpectsResponse: true},
	CmdSkipObjects: {Family: FamilyPrint, Name: "skip_objects", ExpectsResponse: true},
	CmdStartPrint:  {Family: FamilyPrint, Name: "project_file", ExpectsResponse: true},
	CmdSetLight:    {Family: FamilySystem, Name: "ledctrl", ExpectsResponse: true},
	CmdGetVersion:  {Family: FamilyInfo, Name: "get_version", ExpectsResponse: true},
	// The device answers pushall with uncorrelated report pushes, never a
	// direct response.
	CmdPushAll: {Family: FamilyPushing, Name: "pushall", ExpectsResponse: false},
}

// Spec returns the wire mapping for a command kind.
func Spec(kind CommandKind) (family, name string, expectsResponse bool, err error) {
	spec, ok := commandTable[kind]
	if !ok {
		return "", "", false, fmt.Errorf("%w: %d", ErrUnknownCommandKind, kind)
	}
	return spec.Family, spec.Name, spec.ExpectsResponse, nil
}

// Command is one validated request envelope ready for publication.
type Command struct {
	Kind       CommandKind
	Family     string
	Name       string
	SequenceID uint64
	Expects    bool

	payload []byte
}

// Payload returns the serialized envelope bytes.
func (c Command) Payload() []byte {
	return c.payload
}

// BuildCommand resolves a kind against the command table and serializes the
// device envelope: {"<family>": {"sequence_id": "<n>", "command": "<name>",
// ...params}}. The sequence id is rendered as a decimal string because the
// device echoes it back verbatim in that form.
func BuildCommand(kind CommandKind, sequenceID uint64, params map[string]any) (Command, error) {
	spec, ok := commandTable[kind]
	if !ok {
		return Command{}, fmt.Errorf("%w: %d", ErrUnknownCommandKind, kind)
	}

	body := make(map[string]any, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	body["sequence_id"] = strconv.FormatUint(sequenceID, 10)
	body["command"] = spec.Name

	payload, err := json.Marshal(map[string]any{spec.Family: body})
	if err != nil {
		return Command{}, fmt.Errorf("protocol: encode %s.%s: %w", spec.Family, spec.Name, err)
	}

	return Command{
		Kind:       kind,
		Family:     spec.Family,
		Name:       spec.Name,
		SequenceID: sequenceID,
		Expects:    spec.ExpectsResponse,
		payload:    payload,
	}, nil
}

// ParseSequenceID decodes the decimal string form used on the wire.
func ParseSequenceID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSequenceID, raw)
	}
	return id, nil
}
