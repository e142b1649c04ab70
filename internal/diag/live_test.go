package diag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDecodesRPM(t *testing.T) {
	q := &scriptQuerier{responses: map[string]string{"010C": "41 0C 1A F0"}}

	reading, err := NewLiveReader(q).Read(context.Background(), "0c")
	require.NoError(t, err)

	assert.Equal(t, "0C", reading.PID)
	assert.Equal(t, "Engine RPM", reading.Name)
	assert.InDelta(t, 1724, reading.Value, 0.01)
	assert.Equal(t, "rpm", reading.Unit)
	assert.True(t, reading.WithinRange())
}

func TestReadFlagsOutOfRangeCoolant(t *testing.T) {
	// 0x35 - 40 = 13 °C, well under the warmed-engine floor of 80.
	q := &scriptQuerier{responses: map[string]string{"0105": "41 05 35"}}

	reading, err := NewLiveReader(q).Read(context.Background(), "05")
	require.NoError(t, err)
	assert.InDelta(t, 13, reading.Value, 0.01)
	assert.False(t, reading.WithinRange())
}

func TestReadUnknownPID(t *testing.T) {
	q := &scriptQuerier{}

	_, err := NewLiveReader(q).Read(context.Background(), "ZZ")
	assert.Error(t, err)
	assert.Empty(t, q.calls, "unknown PIDs never reach the adapter")
}

func TestReadUnsupportedPID(t *testing.T) {
	q := &scriptQuerier{} // everything answers NO DATA

	_, err := NewLiveReader(q).Read(context.Background(), "46")
	var unsupported *ErrPIDUnsupported
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "46", unsupported.PID)
}

func TestReadManySkipsUnsupported(t *testing.T) {
	q := &scriptQuerier{responses: map[string]string{
		"010C": "41 0C 1A F0",
		"010D": "41 0D 37",
	}}

	readings, err := NewLiveReader(q).ReadMany(context.Background(), []string{"0C", "0D", "46"})
	require.NoError(t, err)
	assert.Len(t, readings, 2)
	assert.Contains(t, readings, "0C")
	assert.Contains(t, readings, "0D")
	assert.NotContains(t, readings, "46")
}

func TestReadManyAbortsOnConnectionError(t *testing.T) {
	q := &scriptQuerier{err: errors.New("link down")}

	_, err := NewLiveReader(q).ReadMany(context.Background(), []string{"0C"})
	assert.Error(t, err, "a dead link must not look like an empty result")
}

func TestPollStopsOnCancel(t *testing.T) {
	q := &scriptQuerier{responses: map[string]string{"010C": "41 0C 1A F0"}}
	ctx, cancel := context.WithCancel(context.Background())

	batches := 0
	err := NewLiveReader(q).Poll(ctx, []string{"0C"}, 5*time.Millisecond, func(r map[string]LiveReading) {
		batches++
		if batches == 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, batches, 2)
}

func TestPayloadBytesRejectsForeignFrames(t *testing.T) {
	_, err := payloadBytes("43 02 01 71", "0C", 2)
	assert.Error(t, err)

	data, err := payloadBytes("41 0C 1A F0", "0C", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1A, 0xF0}, data)
}

func TestSupportedPIDNames(t *testing.T) {
	names := SupportedPIDNames()
	assert.Equal(t, "Engine RPM", names["0C"])
	assert.Equal(t, "Vehicle speed", names["0D"])
}
