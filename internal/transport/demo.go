package transport

// DemoScript is a plausible warmed-up gasoline vehicle behind a v1.5
// clone adapter: two stored fuel-trim codes, no pending codes, steady
// cruise readings.
func DemoScript() map[string]string {
	return map[string]string{
		"ATZ": "ELM327 v1.5",
		"ATI": "ELM327 v1.5",
		"ATE0": "OK",
		"ATL0": "OK",
		"ATH0": "OK",
		"ATRV": "12.6V",

		// Mode 01 supported-PID bitmaps: 01-20 and 21-40 advertised,
		// 41-60 not (last bitmap bit 0 clear).
		"0100": "41 00 BE 3E B8 13",
		"0120": "41 20 90 07 B0 15",
		"0140": "41 40 FE D0 84 00",

		// Live data.
		"010C": "41 0C 1A F0", // 1724 rpm
		"010D": "41 0D 37",    // 55 km/h
		"0105": "41 05 7B",    // 83 °C coolant
		"010F": "41 0F 46",    // 30 °C intake
		"0111": "41 11 33",    // 20 % throttle
		"0104": "41 04 3F",    // 24.7 % load
		"010B": "41 0B 23",    // 35 kPa MAP
		"012F": "41 2F 80",    // 50.2 % fuel
		"0133": "41 33 63",    // 99 kPa baro
		"0142": "41 42 39 4A", // 14.67 V module voltage

		// Mode 03/07/04: stored P0171 + P0174, nothing pending.
		"03": "43 02 01 71 01 74",
		"07": "NO DATA",
		"04": "44",

		// Mode 09: VIN, calibration ID.
		"0902": "49 02 01 31 47 31 4A 43 35 34 34 34 52 37 32 35 32 33 36 37",
		"0904": "49 04 01 4A 4D 42 2A 33 36 37 36 31 35",
	}
}

// NewDemoTransport builds a mock transport loaded with DemoScript.
func NewDemoTransport() *MockTransport {
	return NewMockTransport(DemoScript())
}

// DemoEndpoint is the endpoint the demo locator advertises.
var DemoEndpoint = Endpoint{Target: "demo", Kind: KindUSB, Description: "simulated adapter"}

// NewDemoLocator returns a locator that always finds the demo endpoint.
func NewDemoLocator() *MockLocator {
	return &MockLocator{Endpoints: []Endpoint{DemoEndpoint}}
}

// NewDemoDialer returns a dialer that hands out a fresh demo transport on
// every dial, so reconnects behave like a real re-pair.
func NewDemoDialer() *MockDialer {
	return &MockDialer{NextTransport: func(string) (Transport, error) {
		return NewDemoTransport(), nil
	}}
}
