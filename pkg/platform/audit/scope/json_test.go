package scope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrail() *Scope {
	op := New("op")
	op.LogEvent("start")
	_ = Segment(op, "sub", func(sub *Scope) error {
		sub.LogEvent("work-done")
		sub.AppendScope(New("empty"))
		return nil
	})
	op.LogEvent("end")
	op.setDuration(2*time.Second + 345*time.Microsecond)
	return op
}

func TestRoundTrip(t *testing.T) {
	original := sampleTrail()
	first, err := original.Render()
	require.NoError(t, err)

	var decoded Scope
	require.NoError(t, json.Unmarshal(first, &decoded))

	second, err := decoded.Render()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	assert.Equal(t, original.name, decoded.name)
	assert.Equal(t, original.time, decoded.time)
	assert.Equal(t, *original.duration, *decoded.duration)
	require.Len(t, decoded.events, 3)
	assert.IsType(t, Log{}, decoded.events[0])
	assert.IsType(t, &Scope{}, decoded.events[1])
	assert.IsType(t, Log{}, decoded.events[2])
}

func TestRenderIndent(t *testing.T) {
	au := New("au")
	au.LogEvent("one")

	compact, err := au.Render()
	require.NoError(t, err)
	indented, err := au.RenderIndent()
	require.NoError(t, err)

	assert.Contains(t, string(indented), "\n  \"events\": [")
	assert.JSONEq(t, string(compact), string(indented))
	assert.Equal(t, string(indented), au.String())
}

func TestRender_FieldOrderIsStable(t *testing.T) {
	freezeClock(t)
	au := New("au")
	au.LogEvent("x")

	data, err := au.Render()
	require.NoError(t, err)
	assert.Equal(t,
		`{"time":"2026-10-18T09:12:01.5Z","name":"au","duration":null,"events":[{"log":{"time":"2026-10-18T09:12:01.5Z","name":"x"}}]}`,
		string(data))
}

func TestUnmarshal_AcceptsOffsetTimestamps(t *testing.T) {
	doc := `{
		"time": "2019-03-01T10:00:00.123456789+00:00",
		"name": "legacy",
		"duration": 0.25,
		"events": [
			{"log": {"time": "2019-03-01T10:00:00.2+00:00", "name": "hello"}},
			{"scope": {"time": "2019-03-01T10:00:00.3+00:00", "name": "inner", "duration": null, "events": []}}
		]
	}`

	var s Scope
	require.NoError(t, json.Unmarshal([]byte(doc), &s))
	assert.Equal(t, "legacy", s.name)
	assert.Equal(t, 250*time.Millisecond, *s.duration)
	require.Len(t, s.events, 2)
	assert.Nil(t, s.events[1].(*Scope).duration)
}

func TestUnmarshal_Rejects(t *testing.T) {
	const ts = `"2026-10-18T09:12:01Z"`
	cases := map[string]string{
		"event with both tags":    `{"time":` + ts + `,"name":"a","duration":null,"events":[{"log":{"time":` + ts + `,"name":"x"},"scope":{"time":` + ts + `,"name":"y","events":[]}}]}`,
		"event with no tag":       `{"time":` + ts + `,"name":"a","duration":null,"events":[{}]}`,
		"event with unknown tag":  `{"time":` + ts + `,"name":"a","duration":null,"events":[{"span":{}}]}`,
		"null event body":         `{"time":` + ts + `,"name":"a","duration":null,"events":[{"log":null}]}`,
		"null event":              `{"time":` + ts + `,"name":"a","duration":null,"events":[null]}`,
		"negative duration":       `{"time":` + ts + `,"name":"a","duration":-1,"events":[]}`,
		"duration at int64 limit": `{"time":` + ts + `,"name":"a","duration":9223372036.854775807,"events":[]}`,
		"scope time not RFC 3339": `{"time":"yesterday","name":"a","duration":null,"events":[]}`,
		"log time not RFC 3339":   `{"time":` + ts + `,"name":"a","duration":null,"events":[{"log":{"time":"","name":"x"}}]}`,
		"nested malformed scope":  `{"time":` + ts + `,"name":"a","duration":null,"events":[{"scope":{"time":` + ts + `,"name":"b","duration":null,"events":[{}]}}]}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			var s Scope
			err := json.Unmarshal([]byte(doc), &s)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestUnmarshal_EmptyScope(t *testing.T) {
	var s Scope
	require.NoError(t, json.Unmarshal([]byte(`{"time":"2026-10-18T09:12:01Z","name":"bare","duration":null,"events":[]}`), &s))

	data, err := s.Render()
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":"2026-10-18T09:12:01Z","name":"bare","duration":null,"events":[]}`, string(data))
}

func TestRoundTrip_LargestWholeSecondDuration(t *testing.T) {
	s := New("long")
	s.setDuration(9223372036 * time.Second)

	data, err := s.Render()
	require.NoError(t, err)

	var back Scope
	require.NoError(t, json.Unmarshal(data, &back))
	require.NotNil(t, back.duration)
	assert.Equal(t, 9223372036*time.Second, *back.duration)
}
