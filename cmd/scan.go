package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obdlink/internal/diag"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Read stored and pending trouble codes",
	Long: `Connect to the vehicle and read diagnostic trouble codes: stored
codes (mode 03) and pending codes (mode 07), with descriptions and a
severity classification.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	mgr, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer mgr.Disconnect()

	reader := diag.NewDTCReader(mgr)

	stored, err := reader.ReadStored(ctx)
	if err != nil {
		return fmt.Errorf("read stored codes: %w", err)
	}
	pending, err := reader.ReadPending(ctx)
	if err != nil {
		return fmt.Errorf("read pending codes: %w", err)
	}
	mgr.RecordDTCCount(len(stored) + len(pending))

	printDTCs("Stored", stored)
	printDTCs("Pending", pending)
	return nil
}

func printDTCs(label string, records []diag.DTCRecord) {
	if len(records) == 0 {
		fmt.Printf("%s codes: none\n", label)
		return
	}
	fmt.Printf("%s codes (%d):\n", label, len(records))
	for _, rec := range records {
		fmt.Printf("  %-6s [%s] %s\n", rec.Code, rec.Severity, rec.Description)
		if rec.FreezeFrame != "" {
			fmt.Printf("         freeze frame: %s\n", rec.FreezeFrame)
		}
	}
}
