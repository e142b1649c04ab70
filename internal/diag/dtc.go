package diag

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shaunagostinho/obdlink/internal/elm"
)

// ErrClearNotConfirmed is returned when Clear is called without the
// explicit confirmation flag. Clearing codes also resets readiness
// monitors, so it must never happen implicitly.
var ErrClearNotConfirmed = fmt.Errorf("diag: clear requires explicit confirmation")

// DTCReader reads and clears Diagnostic Trouble Codes.
type DTCReader struct {
	q Querier
}

func NewDTCReader(q Querier) *DTCReader {
	return &DTCReader{q: q}
}

// ReadStored reads mode 03 (confirmed) codes. An empty result with a nil
// error means the ECU genuinely reports no codes.
func (r *DTCReader) ReadStored(ctx context.Context) ([]DTCRecord, error) {
	records, err := r.read(ctx, "03", StatusStored)
	if err != nil {
		return nil, err
	}
	r.attachFreezeFrame(ctx, records)
	return records, nil
}

// ReadPending reads mode 07 (pending, not yet confirmed) codes.
func (r *DTCReader) ReadPending(ctx context.Context) ([]DTCRecord, error) {
	return r.read(ctx, "07", StatusPending)
}

// Clear erases stored codes and the MIL via mode 04. The only mutating
// operation in the system; confirm must be true.
func (r *DTCReader) Clear(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrClearNotConfirmed
	}
	resp, err := r.q.Query(ctx, "04")
	if err != nil {
		return err
	}
	if strings.Contains(resp, "44") || strings.Contains(resp, "OK") {
		return nil
	}
	return fmt.Errorf("diag: clear rejected: %q", resp)
}

func (r *DTCReader) read(ctx context.Context, mode string, status Status) ([]DTCRecord, error) {
	resp, err := r.q.Query(ctx, mode)
	if err != nil {
		return nil, err
	}
	codes, err := decodeDTCPayload(resp, "4"+mode[1:])
	if err != nil {
		return nil, fmt.Errorf("diag: mode %s: %w", mode, err)
	}

	now := time.Now()
	records := make([]DTCRecord, 0, len(codes))
	for _, code := range codes {
		records = append(records, DTCRecord{
			Code:        code,
			Description: DescribeDTC(code),
			Severity:    SeverityFor(code),
			Status:      status,
			DetectedAt:  now,
		})
	}
	return records, nil
}

// attachFreezeFrame captures the mode 02 freeze-frame trigger code and
// attaches the raw payload to the matching record. Best effort: a vehicle
// without a freeze frame answers NO DATA and the records ship without one.
func (r *DTCReader) attachFreezeFrame(ctx context.Context, records []DTCRecord) {
	if len(records) == 0 {
		return
	}
	resp, err := r.q.Query(ctx, "0202")
	if err != nil || elm.IsNoData(resp) || elm.IsErrorResponse(resp) {
		if err != nil {
			log.Printf("[dtc] freeze frame read: %v", err)
		}
		return
	}
	code, ok := freezeFrameCode(resp)
	if !ok {
		return
	}
	for i := range records {
		if records[i].Code == code {
			records[i].FreezeFrame = resp
			return
		}
	}
}

// freezeFrameCode extracts the DTC that set the freeze frame from a
// "42 02 <hi> <lo>" response.
func freezeFrameCode(resp string) (string, bool) {
	fields := strings.Fields(strings.ReplaceAll(resp, "\n", " "))
	for i := 0; i+3 < len(fields); i++ {
		if fields[i] != "42" || fields[i+1] != "02" {
			continue
		}
		hi, err1 := strconv.ParseUint(fields[i+2], 16, 8)
		lo, err2 := strconv.ParseUint(fields[i+3], 16, 8)
		if err1 != nil || err2 != nil {
			return "", false
		}
		code := codeFromBytes(byte(hi), byte(lo))
		if code == "P0000" {
			return "", false
		}
		return code, true
	}
	return "", false
}

// decodeDTCPayload splits a mode 03/07 response into five-character
// codes. Handles both framings seen in the field: CAN inserts a count
// byte after the mode echo ("43 02 01 71 01 74"), legacy buses go
// straight to code pairs padded with zeros ("43 01 71 01 74 00 00").
func decodeDTCPayload(resp, modeEcho string) ([]string, error) {
	if elm.IsNoData(resp) {
		return nil, nil // no codes is a successful read
	}
	if elm.IsErrorResponse(resp) {
		return nil, fmt.Errorf("adapter error: %q", resp)
	}

	var codes []string
	for _, line := range strings.Split(resp, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] != modeEcho {
			continue
		}
		fields = fields[1:]
		if len(fields)%2 == 1 {
			fields = fields[1:] // CAN count byte
		}
		for i := 0; i+1 < len(fields); i += 2 {
			hi, err1 := strconv.ParseUint(fields[i], 16, 8)
			lo, err2 := strconv.ParseUint(fields[i+1], 16, 8)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("bad code bytes %q %q", fields[i], fields[i+1])
			}
			if hi == 0 && lo == 0 {
				continue // padding
			}
			codes = append(codes, codeFromBytes(byte(hi), byte(lo)))
		}
	}
	if len(codes) == 0 && !strings.Contains(resp, modeEcho) {
		return nil, fmt.Errorf("no %s frame in %q", modeEcho, resp)
	}
	return codes, nil
}

// codeFromBytes expands the two-byte wire form: top two bits select the
// system letter, the remaining fourteen bits are four hex characters.
func codeFromBytes(hi, lo byte) string {
	letters := [4]byte{'P', 'C', 'B', 'U'}
	return fmt.Sprintf("%c%X%X%X%X", letters[hi>>6], (hi>>4)&0x3, hi&0xF, lo>>4, lo&0xF)
}
