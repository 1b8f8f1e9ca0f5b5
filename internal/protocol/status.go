package protocol

// PrintState is the device's enumerated operational state.
type PrintState int

const (
	StateUnknown PrintState = iota
	StateIdle
	StateRunning
	StatePaused
	StateFailed
	StateFinished
)

func (s PrintState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFailed:
		return "failed"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ParsePrintState maps the device's gcode_state strings.
func ParsePrintState(raw string) PrintState {
	switch raw {
	case "IDLE":
		return StateIdle
	case "RUNNING", "PREPARE", "SLICING":
		return StateRunning
	case "PAUSE":
		return StatePaused
	case "FAILED":
		return StateFailed
	case "FINISH":
		return StateFinished
	default:
		return StateUnknown
	}
}

// Tray is one filament slot of the ancillary feed module.
type Tray struct {
	ID     string `json:"id"`
	Type   string `json:"tray_type"`
	Color  string `json:"tray_color"`
	Remain int    `json:"remain"`
}

// FeedUnit is one multi-tray unit reported under the ams object.
type FeedUnit struct {
	ID    string `json:"id"`
	Trays []Tray `json:"tray"`
}

// FeedState is the tray subsystem snapshot. Present-or-absent as a whole:
// an incoming report either replaces it or leaves it untouched.
type FeedState struct {
	TrayNow string     `json:"tray_now"`
	Units   []FeedUnit `json:"ams"`
}

// Light is one lighting node state from lights_report.
type Light struct {
	Node string `json:"node"`
	Mode string `json:"mode"`
}

// Status is the merged view of every field the device has reported this
// session. All fields are pointers so that a field absent from an incoming
// report is distinguishable from a reported zero; Merge only overwrites
// fields the incoming report actually carries.
type Status struct {
	GCodeState   *string    `json:"gcode_state,omitempty"`
	Percent      *int       `json:"mc_percent,omitempty"`
	Layer        *int       `json:"layer_num,omitempty"`
	TotalLayers  *int       `json:"total_layer_num,omitempty"`
	RemainingMin *int       `json:"mc_remaining_time,omitempty"`
	NozzleTemp   *float64   `json:"nozzle_temper,omitempty"`
	NozzleTarget *float64   `json:"nozzle_target_temper,omitempty"`
	BedTemp      *float64   `json:"bed_temper,omitempty"`
	BedTarget    *float64   `json:"bed_target_temper,omitempty"`
	PartFan      *string    `json:"cooling_fan_speed,omitempty"`
	AuxFan       *string    `json:"big_fan1_speed,omitempty"`
	ChamberFan   *string    `json:"big_fan2_speed,omitempty"`
	PrintError   *int64     `json:"print_error,omitempty"`
	Speed        *int       `json:"spd_lvl,omitempty"`
	File         *string    `json:"gcode_file,omitempty"`
	Feed         *FeedState `json:"ams,omitempty"`
	Lights       []Light    `json:"lights_report,omitempty"`
}

// State returns the parsed operational state, StateUnknown when the device
// has not reported one yet.
func (s Status) State() PrintState {
	if s.GCodeState == nil {
		return StateUnknown
	}
	return ParsePrintState(*s.GCodeState)
}

// HardwareError reports the device error code, zero when none reported.
func (s Status) HardwareError() int64 {
	if s.PrintError == nil {
		return 0
	}
	return *s.PrintError
}

// Merge folds an incoming report into the receiver. Shallow merge: a field
// the incoming report carries always overwrites, a field it omits leaves
// the previous value untouched. Merging is applied in arrival order.
func (s *Status) Merge(in Status) {
	if in.GCodeState != nil {
		s.GCodeState = in.GCodeState
	}
	if in.Percent != nil {
		s.Percent = in.Percent
	}
	if in.Layer != nil {
		s.Layer = in.Layer
	}
	if in.TotalLayers != nil {
		s.TotalLayers = in.TotalLayers
	}
	if in.RemainingMin != nil {
		s.RemainingMin = in.RemainingMin
	}
	if in.NozzleTemp != nil {
		s.NozzleTemp = in.NozzleTemp
	}
	if in.NozzleTarget != nil {
		s.NozzleTarget = in.NozzleTarget
	}
	if in.BedTemp != nil {
		s.BedTemp = in.BedTemp
	}
	if in.BedTarget != nil {
		s.BedTarget = in.BedTarget
	}
	if in.PartFan != nil {
		s.PartFan = in.PartFan
	}
	if in.AuxFan != nil {
		s.AuxFan = in.AuxFan
	}
	if in.ChamberFan != nil {
		s.ChamberFan = in.ChamberFan
	}
	if in.PrintError != nil {
		s.PrintError = in.PrintError
	}
	if in.Speed != nil {
		s.Speed = in.Speed
	}
	if in.File != nil {
		s.File = in.File
	}
	if in.Feed != nil {
		s.Feed = in.Feed
	}
	if in.Lights != nil {
		s.Lights = in.Lights
	}
}

// Clone returns a deep copy so cache readers never share pointers with the
// merge writer.
func (s Status) Clone() Status {
	out := s
	out.GCodeState = cloneVal(s.GCodeState)
	out.Percent = cloneVal(s.Percent)
	out.Layer = cloneVal(s.Layer)
	out.TotalLayers = cloneVal(s.TotalLayers)
	out.RemainingMin = cloneVal(s.RemainingMin)
	out.NozzleTemp = cloneVal(s.NozzleTemp)
	out.NozzleTarget = cloneVal(s.NozzleTarget)
	out.BedTemp = cloneVal(s.BedTemp)
	out.BedTarget = cloneVal(s.BedTarget)
	out.PartFan = cloneVal(s.PartFan)
	out.AuxFan = cloneVal(s.AuxFan)
	out.ChamberFan = cloneVal(s.ChamberFan)
	out.PrintError = cloneVal(s.PrintError)
	out.Speed = cloneVal(s.Speed)
	out.File = cloneVal(s.File)
	if s.Feed != nil {
		feed := FeedState{TrayNow: s.Feed.TrayNow, Units: make([]FeedUnit, len(s.Feed.Units))}
		for i, u := range s.Feed.Units {
			unit := FeedUnit{ID: u.ID, Trays: make([]Tray, len(u.Trays))}
			copy(unit.Trays, u.Trays)
			feed.Units[i] = unit
		}
		out.Feed = &feed
	}
	if s.Lights != nil {
		out.Lights = make([]Light, len(s.Lights))
		copy(out.Lights, s.Lights)
	}
	return out
}

func cloneVal[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
