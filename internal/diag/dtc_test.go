package diag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptQuerier answers commands from a table, defaulting to NO DATA.
type scriptQuerier struct {
	responses map[string]string
	err       error
	calls     []string
}

func (q *scriptQuerier) Query(_ context.Context, cmd string) (string, error) {
	q.calls = append(q.calls, cmd)
	if q.err != nil {
		return "", q.err
	}
	key := strings.ToUpper(strings.ReplaceAll(cmd, " ", ""))
	if resp, ok := q.responses[key]; ok {
		return resp, nil
	}
	return "NO DATA", nil
}

func TestReadStoredCANFraming(t *testing.T) {
	q := &scriptQuerier{responses: map[string]string{
		"03": "43 02 01 71 01 74",
	}}

	records, err := NewDTCReader(q).ReadStored(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "P0171", records[0].Code)
	assert.Equal(t, "P0174", records[1].Code)
	for _, rec := range records {
		assert.NotEmpty(t, rec.Description)
		assert.Equal(t, SeverityWarning, rec.Severity)
		assert.Equal(t, StatusStored, rec.Status)
		assert.False(t, rec.DetectedAt.IsZero())
	}
}

func TestReadStoredLegacyFraming(t *testing.T) {
	// Legacy buses send code pairs straight after the mode echo, padded
	// with zeros to a fixed frame.
	q := &scriptQuerier{responses: map[string]string{
		"03": "43 03 00 01 71 00 00",
	}}

	records, err := NewDTCReader(q).ReadStored(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "P0300", records[0].Code)
	assert.Equal(t, "P0171", records[1].Code)
}

func TestReadPendingNoDataIsEmptySuccess(t *testing.T) {
	q := &scriptQuerier{}

	records, err := NewDTCReader(q).ReadPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadStoredBusError(t *testing.T) {
	q := &scriptQuerier{responses: map[string]string{"03": "CAN ERROR"}}

	_, err := NewDTCReader(q).ReadStored(context.Background())
	assert.Error(t, err)
}

func TestClearRefusesWithoutConfirmation(t *testing.T) {
	q := &scriptQuerier{}

	err := NewDTCReader(q).Clear(context.Background(), false)
	require.ErrorIs(t, err, ErrClearNotConfirmed)
	assert.Empty(t, q.calls, "refusal must not touch the adapter")
}

func TestClearConfirmed(t *testing.T) {
	q := &scriptQuerier{responses: map[string]string{"04": "44"}}

	require.NoError(t, NewDTCReader(q).Clear(context.Background(), true))
	assert.Equal(t, []string{"04"}, q.calls)
}

func TestClearRejectedByECU(t *testing.T) {
	q := &scriptQuerier{responses: map[string]string{"04": "7F 04 11"}}

	assert.Error(t, NewDTCReader(q).Clear(context.Background(), true))
}

func TestFreezeFrameAttachesToTriggerCode(t *testing.T) {
	q := &scriptQuerier{responses: map[string]string{
		"03":   "43 01 01 71",
		"0202": "42 02 01 71 0C 1A F0",
	}}

	records, err := NewDTCReader(q).ReadStored(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "P0171", records[0].Code)
	assert.NotEmpty(t, records[0].FreezeFrame)
}

func TestCodeFromBytes(t *testing.T) {
	tests := []struct {
		hi, lo byte
		want   string
	}{
		{0x01, 0x71, "P0171"},
		{0x03, 0x00, "P0300"},
		{0x41, 0x23, "C0123"},
		{0x81, 0x34, "B0134"},
		{0xC1, 0x00, "U0100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeFromBytes(tt.hi, tt.lo))
	}
}

func TestSeverityClassification(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFor("P0301")) // misfire
	assert.Equal(t, SeverityCritical, SeverityFor("P0420")) // catalyst
	assert.Equal(t, SeverityWarning, SeverityFor("P0171"))  // fuel trim
	assert.Equal(t, SeverityWarning, SeverityFor("P0442"))  // EVAP
	assert.Equal(t, SeverityInfo, SeverityFor("P0500"))
}

func TestDescribeDTCFallback(t *testing.T) {
	assert.Equal(t, "System Too Lean (Bank 1)", DescribeDTC("P0171"))
	assert.Equal(t, "Powertrain Trouble Code P9999", DescribeDTC("P9999"))
	assert.Equal(t, "Network Trouble Code U3000", DescribeDTC("U3000"))
}

func TestReadStoredPropagatesQuerierError(t *testing.T) {
	q := &scriptQuerier{err: errors.New("link down")}

	_, err := NewDTCReader(q).ReadStored(context.Background())
	assert.Error(t, err)
}
