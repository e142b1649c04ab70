package diag

// pidDef describes one mode 01 parameter: how many data bytes it
// carries, the decode formula, and the expected range when one is known.
// Formulas follow SAE J1979; ranges are general guidelines for a warmed,
// running engine and vary by vehicle.
type pidDef struct {
	id     string
	name   string
	unit   string
	nbytes int
	decode func(data []byte) float64
	min    *float64
	max    *float64
}

func f(v float64) *float64 { return &v }

func byteA(d []byte) float64       { return float64(d[0]) }
func tempA(d []byte) float64       { return float64(d[0]) - 40 }
func percentA(d []byte) float64    { return float64(d[0]) * 100 / 255 }
func trimA(d []byte) float64       { return (float64(d[0]) - 128) * 100 / 128 }
func wordAB(d []byte) float64      { return float64(d[0])*256 + float64(d[1]) }
func rpmAB(d []byte) float64       { return (float64(d[0])*256 + float64(d[1])) / 4 }
func mafAB(d []byte) float64       { return (float64(d[0])*256 + float64(d[1])) / 100 }
func milliVoltAB(d []byte) float64 { return (float64(d[0])*256 + float64(d[1])) / 1000 }

var pidTable = map[string]pidDef{
	"04": {"04", "Calculated engine load", "%", 1, percentA, f(0), f(100)},
	"05": {"05", "Engine coolant temperature", "°C", 1, tempA, f(80), f(105)},
	"06": {"06", "Short term fuel trim (Bank 1)", "%", 1, trimA, f(-10), f(10)},
	"07": {"07", "Long term fuel trim (Bank 1)", "%", 1, trimA, f(-10), f(10)},
	"0A": {"0A", "Fuel pressure", "kPa", 1, func(d []byte) float64 { return float64(d[0]) * 3 }, nil, nil},
	"0B": {"0B", "Intake manifold absolute pressure", "kPa", 1, byteA, f(20), f(120)},
	"0C": {"0C", "Engine RPM", "rpm", 2, rpmAB, f(600), f(8000)},
	"0D": {"0D", "Vehicle speed", "km/h", 1, byteA, f(0), f(250)},
	"0E": {"0E", "Timing advance", "°", 1, func(d []byte) float64 { return float64(d[0])/2 - 64 }, nil, nil},
	"0F": {"0F", "Intake air temperature", "°C", 1, tempA, f(-40), f(60)},
	"10": {"10", "Mass air flow rate", "g/s", 2, mafAB, f(0), f(300)},
	"11": {"11", "Throttle position", "%", 1, percentA, f(0), f(100)},
	"1F": {"1F", "Run time since engine start", "s", 2, wordAB, nil, nil},
	"21": {"21", "Distance traveled with MIL on", "km", 2, wordAB, nil, nil},
	"2F": {"2F", "Fuel tank level input", "%", 1, percentA, f(0), f(100)},
	"33": {"33", "Absolute barometric pressure", "kPa", 1, byteA, f(85), f(110)},
	"42": {"42", "Control module voltage", "V", 2, milliVoltAB, f(10), f(15)},
	"46": {"46", "Ambient air temperature", "°C", 1, tempA, f(-40), f(50)},
	"52": {"52", "Ethanol fuel percentage", "%", 1, percentA, f(0), f(100)},
}

// SupportedPIDNames lists the PIDs the live reader can decode.
func SupportedPIDNames() map[string]string {
	out := make(map[string]string, len(pidTable))
	for id, def := range pidTable {
		out[id] = def.name
	}
	return out
}
