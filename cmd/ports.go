package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obdlink/internal/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List candidate adapter endpoints",
	Long: `List the endpoints the connection manager would try, in probe order:
the configured port first, then serial ports whose names look like OBD
adapters, then everything else.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	var loc transport.Locator = transport.NewSystemLocator()
	if demoMode {
		loc = transport.NewDemoLocator()
	}

	endpoints, err := loc.Locate(portFlag)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		fmt.Println("No candidate endpoints found.")
		return nil
	}

	for i, ep := range endpoints {
		fmt.Printf("%2d. %-30s %-10s %s\n", i+1, ep.Target, ep.Kind, ep.Description)
	}
	return nil
}
