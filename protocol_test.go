package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack/v5"

	"planet-defense/internal/encounter"
)

func TestDecodeBinaryInput(t *testing.T) {
	// fx = -32767, fy = 0, fz = 32767, throttle = -127, fire
	msg := []byte{0x01, 0x80, 0x01, 0x00, 0x00, 0x7F, 0xFF, 0x81, 0x01}
	in, ok := decodeBinaryInput(msg)
	assert.True(t, ok)
	assert.InDelta(t, -1.0, in.FX, 1e-9)
	assert.InDelta(t, 0.0, in.FY, 1e-9)
	assert.InDelta(t, 1.0, in.FZ, 1e-9)
	assert.InDelta(t, -1.0, in.Throttle, 1e-9)
	assert.True(t, in.Fire)

	msg[8] = 0
	in, _ = decodeBinaryInput(msg)
	assert.False(t, in.Fire)
}

func TestDecodeBinaryInputRejects(t *testing.T) {
	_, ok := decodeBinaryInput([]byte{0x01, 0, 0})
	assert.False(t, ok, "short frame")
	_, ok = decodeBinaryInput([]byte{0x02, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.False(t, ok, "unknown frame type")
}

func TestEventMsg(t *testing.T) {
	m := eventMsg(encounter.Event{
		Kind:   encounter.EventDisengaged,
		Planet: 7,
		Reason: encounter.ReasonFled,
	})
	assert.Equal(t, "disengaged", m.Kind)
	assert.Equal(t, uint64(7), m.Planet)
	assert.Equal(t, "fled", m.Reason)
}

func TestSceneStateMsgpackKeys(t *testing.T) {
	data, err := msgpack.Marshal(&SceneState{Tick: 3, Combo: 2})
	assert.NoError(t, err)

	var raw map[string]interface{}
	assert.NoError(t, msgpack.Unmarshal(data, &raw))
	assert.Contains(t, raw, "tick")
	assert.Contains(t, raw, "s")
	assert.Contains(t, raw, "pl")
	assert.NotContains(t, raw, "over", "omitted until the run ends")
}
