package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obdlink/internal/diag"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear trouble codes and turn off the MIL",
	Long: `Clear stored diagnostic trouble codes (mode 04). This also erases
freeze frames and resets emissions readiness monitors, so it refuses to
run without the --yes flag.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm clearing all trouble codes")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return fmt.Errorf("clearing codes erases freeze frames and resets readiness monitors; re-run with --yes to confirm")
	}

	ctx, cancel := signalContext()
	defer cancel()

	mgr, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer mgr.Disconnect()

	if err := diag.NewDTCReader(mgr).Clear(ctx, true); err != nil {
		return err
	}
	fmt.Println("Trouble codes cleared.")
	return nil
}
