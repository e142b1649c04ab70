package diag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shaunagostinho/obdlink/internal/elm"
)

// ErrPIDUnsupported is returned when the vehicle answers NO DATA for a
// requested parameter.
type ErrPIDUnsupported struct{ PID string }

func (e *ErrPIDUnsupported) Error() string {
	return fmt.Sprintf("diag: no data for PID %s", e.PID)
}

// LiveReader reads real-time parameter values.
type LiveReader struct {
	q Querier
}

func NewLiveReader(q Querier) *LiveReader {
	return &LiveReader{q: q}
}

// Read fetches and decodes one parameter.
func (r *LiveReader) Read(ctx context.Context, pid string) (LiveReading, error) {
	pid = strings.ToUpper(strings.TrimSpace(pid))
	def, ok := pidTable[pid]
	if !ok {
		return LiveReading{}, fmt.Errorf("diag: unknown PID %q", pid)
	}

	resp, err := r.q.Query(ctx, "01"+pid)
	if err != nil {
		return LiveReading{}, err
	}
	if elm.IsNoData(resp) {
		return LiveReading{}, &ErrPIDUnsupported{PID: pid}
	}

	data, err := payloadBytes(resp, pid, def.nbytes)
	if err != nil {
		return LiveReading{}, err
	}

	return LiveReading{
		PID:       pid,
		Name:      def.name,
		Value:     def.decode(data),
		Unit:      def.unit,
		Min:       def.min,
		Max:       def.max,
		Timestamp: time.Now(),
	}, nil
}

// ReadMany reads a set of parameters. PIDs the vehicle does not support
// are skipped with a log line; connection-level errors abort the whole
// read so a failure is never mistaken for an empty result.
func (r *LiveReader) ReadMany(ctx context.Context, pids []string) (map[string]LiveReading, error) {
	out := make(map[string]LiveReading, len(pids))
	for _, pid := range pids {
		reading, err := r.Read(ctx, pid)
		if err != nil {
			var unsupported *ErrPIDUnsupported
			if errors.As(err, &unsupported) {
				log.Printf("[live] PID %s unsupported by vehicle", pid)
				continue
			}
			return nil, err
		}
		out[reading.PID] = reading
	}
	return out, nil
}

// Poll reads pids every interval and hands each batch to fn. It returns
// when ctx is cancelled (observed at tick boundaries, never mid-query)
// or when a connection-level error aborts the cycle.
func (r *LiveReader) Poll(ctx context.Context, pids []string, interval time.Duration, fn func(map[string]LiveReading)) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		readings, err := r.ReadMany(ctx, pids)
		if err != nil {
			return err
		}
		fn(readings)
	}
}

// payloadBytes extracts the data bytes from a "41 <pid> ..." response.
func payloadBytes(resp, pid string, n int) ([]byte, error) {
	for _, line := range strings.Split(resp, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2+n || fields[0] != "41" || !strings.EqualFold(fields[1], pid) {
			continue
		}
		data := make([]byte, n)
		for i := 0; i < n; i++ {
			v, err := strconv.ParseUint(fields[2+i], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("diag: PID %s: bad byte %q", pid, fields[2+i])
			}
			data[i] = byte(v)
		}
		return data, nil
	}
	return nil, fmt.Errorf("diag: PID %s: no 41 frame in %q", pid, resp)
}
