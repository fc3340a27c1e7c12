package remote

import (
	"fmt"

	"loomtrack-backend/internal/model"
	"loomtrack-backend/internal/parse"
)

// recordRow is the wire shape of a remote record row. Remote rows are
// mapped into typed entities exactly once, here at the boundary; nothing
// downstream sees the raw shape.
type recordRow struct {
	ID        string  `json:"id"`
	Date      string  `json:"date"`
	Shift     string  `json:"shift"`
	MachineNo string  `json:"machine_no"`
	Stops     int     `json:"stops"`
	WeftMeter float64 `json:"weft_meter"`
	TotalTime string  `json:"total_time"`
	RunTime   string  `json:"run_time"`
}

type settingsRow struct {
	MachineCount     int     `json:"machine_count"`
	AlertThreshold   float64 `json:"alert_threshold"`
	RemoteEndpoint   string  `json:"remote_endpoint"`
	RemoteKey        string  `json:"remote_key"`
	MessageTemplate  string  `json:"message_template"`
	MessageRecipient string  `json:"message_recipient"`
}

type eventRow struct {
	Kind   string     `json:"kind"`
	Record *recordRow `json:"record,omitempty"`
	ID     string     `json:"id,omitempty"`
}

func mapRecord(row recordRow) (model.Record, error) {
	if row.ID == "" {
		return model.Record{}, fmt.Errorf("remote record has no id")
	}
	shift := model.Shift(row.Shift)
	if !shift.Valid() {
		return model.Record{}, fmt.Errorf("remote record %s has unknown shift %q", row.ID, row.Shift)
	}
	if row.Stops < 0 {
		return model.Record{}, fmt.Errorf("remote record %s has negative stop count", row.ID)
	}
	if row.WeftMeter < 0 {
		return model.Record{}, fmt.Errorf("remote record %s has negative weft meter", row.ID)
	}
	if _, err := parse.Span(row.TotalTime); err != nil {
		return model.Record{}, fmt.Errorf("remote record %s: %w", row.ID, err)
	}
	if _, err := parse.Span(row.RunTime); err != nil {
		return model.Record{}, fmt.Errorf("remote record %s: %w", row.ID, err)
	}

	return model.Record{
		ID:        row.ID,
		Date:      row.Date,
		Shift:     shift,
		MachineNo: row.MachineNo,
		Stops:     row.Stops,
		WeftMeter: row.WeftMeter,
		Total:     row.TotalTime,
		Run:       row.RunTime,
	}, nil
}

func toRecordRow(r model.Record) recordRow {
	return recordRow{
		ID:        r.ID,
		Date:      r.Date,
		Shift:     string(r.Shift),
		MachineNo: r.MachineNo,
		Stops:     r.Stops,
		WeftMeter: r.WeftMeter,
		TotalTime: r.Total,
		RunTime:   r.Run,
	}
}

func mapSettings(row settingsRow) model.Settings {
	return model.Settings{
		MachineCount:     row.MachineCount,
		AlertThreshold:   row.AlertThreshold,
		RemoteEndpoint:   row.RemoteEndpoint,
		RemoteKey:        row.RemoteKey,
		MessageTemplate:  row.MessageTemplate,
		MessageRecipient: row.MessageRecipient,
	}
}

func toSettingsRow(s model.Settings) settingsRow {
	return settingsRow{
		MachineCount:     s.MachineCount,
		AlertThreshold:   s.AlertThreshold,
		RemoteEndpoint:   s.RemoteEndpoint,
		RemoteKey:        s.RemoteKey,
		MessageTemplate:  s.MessageTemplate,
		MessageRecipient: s.MessageRecipient,
	}
}

func mapEvent(row eventRow) (Event, error) {
	switch EventKind(row.Kind) {
	case EventDelete:
		if row.ID == "" {
			return Event{}, fmt.Errorf("delete event has no id")
		}
		return Event{Kind: EventDelete, RecordID: row.ID}, nil
	case EventInsert, EventUpdate:
		if row.Record == nil {
			return Event{}, fmt.Errorf("%s event has no record", row.Kind)
		}
		rec, err := mapRecord(*row.Record)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventKind(row.Kind), Record: &rec, RecordID: rec.ID}, nil
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", row.Kind)
	}
}
