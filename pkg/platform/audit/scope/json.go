package scope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Discriminants of the event union as they appear on the wire.
const (
	tagLog   = "log"
	tagScope = "scope"
)

type logDoc struct {
	Time string `json:"time"`
	Name string `json:"name"`
}

type scopeDoc struct {
	Time     string     `json:"time"`
	Name     string     `json:"name"`
	Duration *float64   `json:"duration"`
	Events   []eventDoc `json:"events"`
}

// eventDoc carries one Event as {"log": {...}} or {"scope": {...}}.
type eventDoc struct {
	event Event
}

// Render returns the compact JSON document of the scope and its whole subtree.
func (s *Scope) Render() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("render scope %q: %w", s.name, err)
	}
	return data, nil
}

// RenderIndent is Render with two-space indentation.
func (s *Scope) RenderIndent() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render scope %q: %w", s.name, err)
	}
	return data, nil
}

// MarshalJSON implements json.Marshaler. Events always render as an array and an absent
// duration renders as null.
func (s *Scope) MarshalJSON() ([]byte, error) {
	doc := scopeDoc{
		Time:   s.time,
		Name:   s.name,
		Events: make([]eventDoc, len(s.events)),
	}
	if s.duration != nil {
		secs := s.duration.Seconds()
		doc.Duration = &secs
	}
	for i, ev := range s.events {
		doc.Events[i] = eventDoc{event: ev}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var doc scopeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := checkTime(doc.Time); err != nil {
		return err
	}
	decoded := Scope{
		time:   doc.Time,
		name:   doc.Name,
		events: make([]Event, len(doc.Events)),
	}
	if doc.Duration != nil {
		d, err := secondsToDuration(*doc.Duration)
		if err != nil {
			return err
		}
		decoded.duration = &d
	}
	for i, ev := range doc.Events {
		decoded.events[i] = ev.event
	}
	*s = decoded
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(logDoc{Time: l.time, Name: l.name})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Log) UnmarshalJSON(data []byte) error {
	var doc logDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := checkTime(doc.Time); err != nil {
		return err
	}
	*l = Log{time: doc.Time, name: doc.Name}
	return nil
}

func (e eventDoc) MarshalJSON() ([]byte, error) {
	switch ev := e.event.(type) {
	case Log:
		return json.Marshal(struct {
			Log Log `json:"log"`
		}{ev})
	case *Scope:
		return json.Marshal(struct {
			Scope *Scope `json:"scope"`
		}{ev})
	default:
		return nil, fmt.Errorf("%w: unknown event type %T", ErrMalformed, e.event)
	}
}

func (e *eventDoc) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("%w: event must have exactly one of %q or %q", ErrMalformed, tagLog, tagScope)
	}
	for tag, body := range tagged {
		if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			return fmt.Errorf("%w: %q event is null", ErrMalformed, tag)
		}
		switch tag {
		case tagLog:
			var l Log
			if err := json.Unmarshal(body, &l); err != nil {
				return err
			}
			e.event = l
		case tagScope:
			child := new(Scope)
			if err := json.Unmarshal(body, child); err != nil {
				return err
			}
			e.event = child
		default:
			return fmt.Errorf("%w: unknown event tag %q", ErrMalformed, tag)
		}
	}
	return nil
}

func checkTime(ts string) error {
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		return fmt.Errorf("%w: time %q is not RFC 3339", ErrMalformed, ts)
	}
	return nil
}

func secondsToDuration(secs float64) (time.Duration, error) {
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) || secs >= math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("%w: duration %v out of range", ErrMalformed, secs)
	}
	return time.Duration(math.Round(secs * float64(time.Second))), nil
}
