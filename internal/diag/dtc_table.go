package diag

import "strings"

// dtcDescriptions covers the codes seen most often in the field. Codes
// outside the table fall back to a generic per-system description.
var dtcDescriptions = map[string]string{
	"P0100": "Mass or Volume Air Flow Circuit Malfunction",
	"P0101": "Mass or Volume Air Flow Circuit Range/Performance Problem",
	"P0102": "Mass or Volume Air Flow Circuit Low Input",
	"P0113": "Intake Air Temperature Sensor 1 Circuit High",
	"P0115": "Engine Coolant Temperature Circuit Malfunction",
	"P0116": "Engine Coolant Temperature Circuit Range/Performance",
	"P0117": "Engine Coolant Temperature Circuit Low Input",
	"P0118": "Engine Coolant Temperature Circuit High Input",
	"P0121": "Throttle Position Sensor Circuit Range/Performance",
	"P0125": "Insufficient Coolant Temperature for Closed Loop Fuel Control",
	"P0128": "Coolant Thermostat Below Regulating Temperature",
	"P0130": "O2 Sensor Circuit Malfunction (Bank 1, Sensor 1)",
	"P0131": "O2 Sensor Circuit Low Voltage (Bank 1, Sensor 1)",
	"P0133": "O2 Sensor Circuit Slow Response (Bank 1, Sensor 1)",
	"P0135": "O2 Sensor Heater Circuit Malfunction (Bank 1, Sensor 1)",
	"P0141": "O2 Sensor Heater Circuit Malfunction (Bank 1, Sensor 2)",
	"P0171": "System Too Lean (Bank 1)",
	"P0172": "System Too Rich (Bank 1)",
	"P0174": "System Too Lean (Bank 2)",
	"P0175": "System Too Rich (Bank 2)",
	"P0217": "Engine Overtemperature Condition",
	"P0300": "Random/Multiple Cylinder Misfire Detected",
	"P0301": "Cylinder 1 Misfire Detected",
	"P0302": "Cylinder 2 Misfire Detected",
	"P0303": "Cylinder 3 Misfire Detected",
	"P0304": "Cylinder 4 Misfire Detected",
	"P0305": "Cylinder 5 Misfire Detected",
	"P0306": "Cylinder 6 Misfire Detected",
	"P0325": "Knock Sensor 1 Circuit Malfunction",
	"P0335": "Crankshaft Position Sensor A Circuit Malfunction",
	"P0340": "Camshaft Position Sensor Circuit Malfunction",
	"P0401": "Exhaust Gas Recirculation Flow Insufficient",
	"P0420": "Catalyst System Efficiency Below Threshold (Bank 1)",
	"P0430": "Catalyst System Efficiency Below Threshold (Bank 2)",
	"P0440": "Evaporative Emission Control System Malfunction",
	"P0442": "Evaporative Emission System Leak Detected (Small Leak)",
	"P0446": "Evaporative Emission Vent Control Circuit Malfunction",
	"P0455": "Evaporative Emission System Leak Detected (Large Leak)",
	"P0500": "Vehicle Speed Sensor Malfunction",
	"P0505": "Idle Control System Malfunction",
	"P0562": "System Voltage Low",
	"P0600": "Serial Communication Link Malfunction",
	"P0700": "Transmission Control System Malfunction",
	"C0035": "Left Front Wheel Speed Sensor Circuit",
	"B0001": "Driver Frontal Stage 1 Deployment Control",
	"U0100": "Lost Communication With ECM/PCM",
	"U0121": "Lost Communication With Anti-Lock Brake System Module",
}

// criticalPrefixes are engine-critical families: misfires, catalyst
// damage, overheating, low system voltage.
var criticalPrefixes = []string{"P030", "P0420", "P0430", "P0217", "P0562"}

// warningPrefixes are emissions and efficiency families: fuel trim, O2
// sensors, thermostat, EVAP.
var warningPrefixes = []string{"P017", "P013", "P014", "P0128", "P044", "P0401"}

// SeverityFor classifies a code through the static table.
func SeverityFor(code string) Severity {
	for _, p := range criticalPrefixes {
		if strings.HasPrefix(code, p) {
			return SeverityCritical
		}
	}
	for _, p := range warningPrefixes {
		if strings.HasPrefix(code, p) {
			return SeverityWarning
		}
	}
	return SeverityInfo
}

// DescribeDTC returns the description for a code, falling back to a
// generic per-system phrase so no record ships with an empty description.
func DescribeDTC(code string) string {
	if desc, ok := dtcDescriptions[code]; ok {
		return desc
	}
	system := "Unknown System"
	if len(code) > 0 {
		switch code[0] {
		case 'P':
			system = "Powertrain"
		case 'C':
			system = "Chassis"
		case 'B':
			system = "Body"
		case 'U':
			system = "Network"
		}
	}
	return system + " Trouble Code " + code
}
