package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obdlink/internal/diag"
)

var (
	livePIDs  string
	liveWatch time.Duration
)

// defaultLivePIDs is the dashboard set: RPM, speed, coolant, intake
// temperature, throttle, load, fuel level.
var defaultLivePIDs = []string{"0C", "0D", "05", "0F", "11", "04", "2F"}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Read live sensor data",
	Long: `Read real-time parameters (mode 01 PIDs) once, or continuously with
--watch. Values outside their expected range are flagged. PIDs the
vehicle does not support are skipped.`,
	RunE: runLive,
}

func init() {
	liveCmd.Flags().StringVar(&livePIDs, "pids", "", "Comma-separated PID list, e.g. 0C,0D,05 (default: common dashboard set)")
	liveCmd.Flags().DurationVar(&liveWatch, "watch", 0, "Poll continuously at this interval, e.g. 1s (Ctrl-C to stop)")
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	pids := defaultLivePIDs
	if livePIDs != "" {
		pids = strings.Split(livePIDs, ",")
	}

	ctx, cancel := signalContext()
	defer cancel()

	mgr, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer mgr.Disconnect()

	reader := diag.NewLiveReader(mgr)

	if liveWatch <= 0 {
		readings, err := reader.ReadMany(ctx, pids)
		if err != nil {
			return err
		}
		printReadings(readings)
		return nil
	}

	err = reader.Poll(ctx, pids, liveWatch, func(readings map[string]diag.LiveReading) {
		fmt.Println(time.Now().Format("15:04:05"))
		printReadings(readings)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printReadings(readings map[string]diag.LiveReading) {
	pids := make([]string, 0, len(readings))
	for pid := range readings {
		pids = append(pids, pid)
	}
	sort.Strings(pids)

	for _, pid := range pids {
		r := readings[pid]
		flag := ""
		if !r.WithinRange() {
			flag = "  (out of expected range)"
		}
		fmt.Printf("  %-34s %8.1f %-5s%s\n", r.Name, r.Value, r.Unit, flag)
	}
}
