package model

// Settings is the single global configuration object. There is always
// exactly one logical instance, stored under a fixed key both locally and
// on the remote store.
type Settings struct {
	MachineCount     int     `json:"machineCount"`
	AlertThreshold   float64 `json:"alertThreshold"` // efficiency %, 0-100
	RemoteEndpoint   string  `json:"remoteEndpoint"`
	RemoteKey        string  `json:"remoteKey"`
	MessageTemplate  string  `json:"messageTemplate"`
	MessageRecipient string  `json:"messageRecipient"`
}

// DefaultSettings returns the values used on first run, before any local
// or remote copy exists.
func DefaultSettings() Settings {
	return Settings{
		MachineCount:    16,
		AlertThreshold:  75,
		MessageTemplate: "Machine {machine} ran at {efficiency}% on {date}",
	}
}

// SettingsPatch is a partial settings update; nil fields are left as-is.
type SettingsPatch struct {
	MachineCount     *int     `json:"machineCount"`
	AlertThreshold   *float64 `json:"alertThreshold"`
	RemoteEndpoint   *string  `json:"remoteEndpoint"`
	RemoteKey        *string  `json:"remoteKey"`
	MessageTemplate  *string  `json:"messageTemplate"`
	MessageRecipient *string  `json:"messageRecipient"`
}

// Apply merges the patch into a copy of s and returns the result.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.MachineCount != nil {
		s.MachineCount = *p.MachineCount
	}
	if p.AlertThreshold != nil {
		s.AlertThreshold = *p.AlertThreshold
	}
	if p.RemoteEndpoint != nil {
		s.RemoteEndpoint = *p.RemoteEndpoint
	}
	if p.RemoteKey != nil {
		s.RemoteKey = *p.RemoteKey
	}
	if p.MessageTemplate != nil {
		s.MessageTemplate = *p.MessageTemplate
	}
	if p.MessageRecipient != nil {
		s.MessageRecipient = *p.MessageRecipient
	}
	return s
}
