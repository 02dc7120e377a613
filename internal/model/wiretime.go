package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// wireLayouts are the timestamp forms backends are known to send. Naive
// stamps are taken as UTC. Fractional seconds are accepted by every layout.
var wireLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// WireTime decodes a timestamp leniently: an absent, null or unparsable
// value becomes the zero time instead of failing the enclosing payload.
type WireTime struct {
	time.Time
}

func ParseWireTime(s string) (time.Time, bool) {
	for _, layout := range wireLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (t *WireTime) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	t.Time, _ = ParseWireTime(s)
	return nil
}

func (t WireTime) MarshalJSON() ([]byte, error) {
	return t.Time.MarshalJSON()
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	aux := struct {
		*plain
		SentAt WireTime  `json:"timestamp"`
		ReadAt *WireTime `json:"read_at"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.SentAt = aux.SentAt.Time
	m.ReadAt = nil
	if aux.ReadAt != nil && !aux.ReadAt.IsZero() {
		at := aux.ReadAt.Time
		m.ReadAt = &at
	}
	return nil
}

func (r *ReadReceipt) UnmarshalJSON(data []byte) error {
	type plain ReadReceipt
	aux := struct {
		*plain
		ReadAt WireTime `json:"timestamp"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ReadAt = aux.ReadAt.Time
	return nil
}

func (r *Reaction) UnmarshalJSON(data []byte) error {
	type plain Reaction
	aux := struct {
		*plain
		CreatedAt WireTime `json:"created_at"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.CreatedAt = aux.CreatedAt.Time
	return nil
}

func (e *PresenceEvent) UnmarshalJSON(data []byte) error {
	type plain PresenceEvent
	aux := struct {
		*plain
		Timestamp WireTime `json:"timestamp"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Timestamp = aux.Timestamp.Time
	return nil
}

func (e *StatusEvent) UnmarshalJSON(data []byte) error {
	type plain StatusEvent
	aux := struct {
		*plain
		Timestamp WireTime `json:"timestamp"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Timestamp = aux.Timestamp.Time
	return nil
}

func (e *PongEvent) UnmarshalJSON(data []byte) error {
	var aux struct {
		Timestamp WireTime `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Timestamp = aux.Timestamp.Time
	return nil
}
