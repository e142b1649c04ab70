package diag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoVehicleQuerier() *scriptQuerier {
	return &scriptQuerier{responses: map[string]string{
		"0902": "49 02 01 31 47 31 4A 43 35 34 34 34 52 37 32 35 32 33 36 37",
		"0904": "49 04 01 4A 4D 42 2A 33 36 37 36 31 35",
		"0100": "41 00 BE 3E B8 13",
		"0120": "41 20 90 07 B0 15",
		"0140": "41 40 FE D0 84 00",
	}}
}

func TestReadOnce(t *testing.T) {
	info, err := NewVehicleReader(demoVehicleQuerier()).ReadOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1G1JC5444R7252367", info.VIN)
	assert.Equal(t, "Chevrolet", info.Make)
	assert.Equal(t, 2024, info.Year)
	assert.Equal(t, "JMB*367615", info.CalibrationID)

	assert.Contains(t, info.SupportedPIDs, "0C")
	assert.Contains(t, info.SupportedPIDs, "0D")
	assert.Contains(t, info.SupportedPIDs, "2F")
	// Continuation bits advertise the next bitmap page, not a real PID.
	assert.NotContains(t, info.SupportedPIDs, "20")
	assert.NotContains(t, info.SupportedPIDs, "40")
	// The 41-60 page ends the walk with its last bit clear.
	assert.NotContains(t, info.SupportedPIDs, "60")
}

func TestReadOnceRequiresVIN(t *testing.T) {
	q := &scriptQuerier{} // mode 09 answers NO DATA

	_, err := NewVehicleReader(q).ReadOnce(context.Background())
	assert.Error(t, err)
}

func TestDecodeVINMultiFrameCAN(t *testing.T) {
	resp := "014\n" +
		"0: 49 02 01 31 47 31\n" +
		"1: 4A 43 35 34 34 34 52\n" +
		"2: 37 32 35 32 33 36 37"

	vin, err := decodeVIN(resp)
	require.NoError(t, err)
	assert.Equal(t, "1G1JC5444R7252367", vin)
}

func TestDecodeVINRejectsShortPayload(t *testing.T) {
	_, err := decodeVIN("49 02 01 31 47 31")
	assert.Error(t, err)
}

func TestMakeFromVIN(t *testing.T) {
	assert.Equal(t, "Chevrolet", makeFromVIN("1G1JC5444R7252367"))
	assert.Equal(t, "Honda", makeFromVIN("1HGCM82633A004352"))
	assert.Equal(t, "Toyota", makeFromVIN("JTDKB20U887654321"))
	assert.Equal(t, "", makeFromVIN("XXX00000000000000"))
}

func TestModelYearFromVIN(t *testing.T) {
	assert.Equal(t, 2024, modelYearFromVIN("1G1JC5444R7252367"))
	assert.Equal(t, 2018, modelYearFromVIN("1G1JC5444J7252367"))
	assert.Equal(t, 0, modelYearFromVIN("short"))
}
