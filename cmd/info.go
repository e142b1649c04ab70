package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obdlink/internal/diag"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show vehicle identification and adapter status",
	Long: `Read the VIN, decode make and model year from it, list the
calibration ID and supported PIDs, and report the adapter's measured
battery voltage.`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	mgr, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer mgr.Disconnect()

	info, err := diag.NewVehicleReader(mgr).ReadOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("VIN:            %s\n", info.VIN)
	if info.Make != "" {
		fmt.Printf("Make:           %s\n", info.Make)
	}
	if info.Year != 0 {
		fmt.Printf("Model year:     %d\n", info.Year)
	}
	if info.CalibrationID != "" {
		fmt.Printf("Calibration ID: %s\n", info.CalibrationID)
	}
	if info.CVN != "" {
		fmt.Printf("CVN:            %s\n", info.CVN)
	}
	fmt.Printf("Supported PIDs: %s\n", strings.Join(info.SupportedPIDs, " "))

	if v, err := mgr.Voltage(ctx); err == nil {
		fmt.Printf("Battery:        %s\n", v)
	}
	return nil
}
