package model

// Shift identifies which working shift an observation belongs to.
type Shift string

const (
	ShiftDay   Shift = "Day"
	ShiftNight Shift = "Night"
)

// Valid reports whether the shift is one of the two known values.
func (s Shift) Valid() bool {
	return s == ShiftDay || s == ShiftNight
}

// Record is one shift observation for a single loom. The ID is assigned
// once (locally, before the remote store has seen the record) and never
// changes; every other field is mutable via update.
type Record struct {
	ID        string  `json:"id"`
	Date      string  `json:"date"` // calendar date, "2006-01-02"
	Shift     Shift   `json:"shift"`
	MachineNo string  `json:"machineNo"`
	Stops     int     `json:"stops"`
	WeftMeter float64 `json:"weftMeter"`
	Total     string  `json:"total"` // elapsed shift span, "HH:MM:SS"
	Run       string  `json:"run"`   // running span within Total, "HH:MM:SS"
}
