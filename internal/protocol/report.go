package protocol

import (
	"bytes"
	"encoding/json"
)

// Report is one parsed inbound message from the device's report channel.
type Report struct {
	Family     string
	Command    string
	SequenceID string

	// Status is non-nil when the message carried a print status
	// sub-object worth merging into the cache.
	Status *Status

	// Body is the raw family sub-object, handed to a correlated caller
	// as the response payload.
	Body json.RawMessage
}

type reportMeta struct {
	SequenceID string `json:"sequence_id"`
	Command    string `json:"command"`
}

var reportFamilies = []string{FamilyPrint, FamilySystem, FamilyPushing, FamilyInfo}

// ParseReport decodes an inbound payload. The first recognized family key
// wins; a payload with none is rejected with ErrNotAReport so the session
// can discard it without treating it as a fault.
func ParseReport(payload []byte) (Report, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return Report{}, ErrEmptyReport
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Report{}, err
	}

	for _, family := range reportFamilies {
		body, ok := envelope[family]
		if !ok {
			continue
		}

		var meta reportMeta
		if err := json.Unmarshal(body, &meta); err != nil {
			return Report{}, err
		}

		rep := Report{
			Family:     family,
			Command:    meta.Command,
			SequenceID: meta.SequenceID,
			Body:       body,
		}

		if family == FamilyPrint {
			var st Status
			if err := json.Unmarshal(body, &st); err == nil && hasStatusFields(st) {
				rep.Status = &st
			}
		}
		return rep, nil
	}

	return Report{}, ErrNotAReport
}

func hasStatusFields(s Status) bool {
	return s.GCodeState != nil || s.Percent != nil || s.Layer != nil ||
		s.TotalLayers != nil || s.NozzleTemp != nil || s.BedTemp != nil ||
		s.PrintError != nil || s.Feed != nil || s.Lights != nil
}
