package diag

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/shaunagostinho/obdlink/internal/elm"
)

// VehicleReader fetches the vehicle's identity and capability snapshot.
// It performs no caching: the connection manager's caller caches the
// result for the lifetime of the connection.
type VehicleReader struct {
	q Querier
}

func NewVehicleReader(q Querier) *VehicleReader {
	return &VehicleReader{q: q}
}

// ReadOnce reads VIN, calibration identifiers, and the supported-PID
// bitmap. The VIN is required; calibration data is best effort since many
// older ECUs do not implement the full mode 09 set.
func (r *VehicleReader) ReadOnce(ctx context.Context) (*VehicleInfo, error) {
	vinResp, err := r.q.Query(ctx, "0902")
	if err != nil {
		return nil, err
	}
	vin, err := decodeVIN(vinResp)
	if err != nil {
		return nil, err
	}

	info := &VehicleInfo{VIN: vin}
	info.Make = makeFromVIN(vin)
	info.Year = modelYearFromVIN(vin)

	if calResp, err := r.q.Query(ctx, "0904"); err == nil {
		info.CalibrationID = decodeMode09Text(calResp, "04")
	} else {
		log.Printf("[vehicle] calibration ID read: %v", err)
	}
	if cvnResp, err := r.q.Query(ctx, "0906"); err == nil && !elm.IsNoData(cvnResp) {
		info.CVN = strings.Join(strings.Fields(stripMode09Header(cvnResp, "06")), "")
	}

	pids, err := r.supportedPIDs(ctx)
	if err != nil {
		return nil, err
	}
	info.SupportedPIDs = pids
	return info, nil
}

// supportedPIDs walks the mode 01 capability bitmaps. Each 32-bit page
// advertises the next page in its last bit.
func (r *VehicleReader) supportedPIDs(ctx context.Context) ([]string, error) {
	var pids []string
	for page := 0; page <= 0xE0; page += 0x20 {
		cmd := fmt.Sprintf("01%02X", page)
		resp, err := r.q.Query(ctx, cmd)
		if err != nil {
			return nil, err
		}
		if elm.IsNoData(resp) || elm.IsErrorResponse(resp) {
			break
		}
		data, err := payloadBytes(resp, fmt.Sprintf("%02X", page), 4)
		if err != nil {
			break
		}

		next := false
		for i, b := range data {
			for bit := 0; bit < 8; bit++ {
				if b&(1<<(7-bit)) == 0 {
					continue
				}
				pid := page + i*8 + bit + 1
				if pid == page+0x20 {
					next = true
					continue
				}
				pids = append(pids, fmt.Sprintf("%02X", pid))
			}
		}
		if !next {
			break
		}
	}
	return pids, nil
}

// decodeVIN extracts the 17-character VIN from a mode 09 02 response.
func decodeVIN(resp string) (string, error) {
	if elm.IsNoData(resp) || elm.IsErrorResponse(resp) {
		return "", fmt.Errorf("diag: vehicle did not report a VIN: %q", resp)
	}
	vin := decodeMode09Text(resp, "02")
	if len(vin) != 17 {
		return "", fmt.Errorf("diag: decoded VIN %q is not 17 characters", vin)
	}
	return vin, nil
}

// decodeMode09Text converts a mode 09 hex payload into printable ASCII.
// Handles both the single-line legacy form and CAN multi-frame responses
// with ISO-TP length lines and "N:" frame prefixes; count and sequence
// bytes fall below the printable range and are dropped with the padding.
func decodeMode09Text(resp, pid string) string {
	var out []byte
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, ":"); i >= 0 && i <= 2 {
			line = line[i+1:] // CAN frame index prefix
		}
		fields := strings.Fields(line)
		if len(fields) == 1 && len(fields[0]) == 3 {
			continue // ISO-TP length line
		}
		if len(fields) >= 2 && fields[0] == "49" && strings.EqualFold(fields[1], pid) {
			fields = fields[2:]
		}
		for _, tok := range fields {
			v, err := strconv.ParseUint(tok, 16, 8)
			if err != nil {
				continue
			}
			if v >= 0x20 && v < 0x7F {
				out = append(out, byte(v))
			}
		}
	}
	return string(out)
}

func stripMode09Header(resp, pid string) string {
	return decodeMode09Text(resp, pid)
}

// wmiMakes maps common World Manufacturer Identifier prefixes to makes.
var wmiMakes = map[string]string{
	"1G1": "Chevrolet", "1G": "General Motors", "1FA": "Ford", "1FT": "Ford",
	"1C3": "Chrysler", "1HG": "Honda", "2HG": "Honda", "JHM": "Honda",
	"1N4": "Nissan", "JN1": "Nissan", "4T1": "Toyota", "JT": "Toyota",
	"2T1": "Toyota", "KM8": "Hyundai", "KNA": "Kia", "WVW": "Volkswagen",
	"WBA": "BMW", "WDB": "Mercedes-Benz", "WAU": "Audi", "YV1": "Volvo",
	"JF1": "Subaru", "JM1": "Mazda", "VF3": "Peugeot", "VF1": "Renault",
	"3VW": "Volkswagen", "5YJ": "Tesla",
}

// makeFromVIN resolves the manufacturer from the VIN's WMI, longest
// prefix first. Unknown prefixes leave the make empty.
func makeFromVIN(vin string) string {
	if len(vin) < 3 {
		return ""
	}
	for n := 3; n >= 2; n-- {
		if name, ok := wmiMakes[vin[:n]]; ok {
			return name
		}
	}
	return ""
}

// yearCodes is the VIN position-10 model year alphabet. The code cycles
// every 30 years; codes here cover 2001-2030, which is the population of
// OBD-II vehicles this decoding matters for.
var yearCodes = map[byte]int{
	'1': 2001, '2': 2002, '3': 2003, '4': 2004, '5': 2005,
	'6': 2006, '7': 2007, '8': 2008, '9': 2009,
	'A': 2010, 'B': 2011, 'C': 2012, 'D': 2013, 'E': 2014,
	'F': 2015, 'G': 2016, 'H': 2017, 'J': 2018, 'K': 2019,
	'L': 2020, 'M': 2021, 'N': 2022, 'P': 2023, 'R': 2024,
	'S': 2025, 'T': 2026, 'V': 2027, 'W': 2028, 'X': 2029, 'Y': 2030,
}

func modelYearFromVIN(vin string) int {
	if len(vin) < 10 {
		return 0
	}
	return yearCodes[vin[9]]
}
