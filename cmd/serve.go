package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obdlink/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the diagnostic HTTP/WebSocket API",
	Long: `Serve the diagnostic API over HTTP with a WebSocket live-data
stream. The server starts disconnected; clients connect the vehicle via
POST /api/connect and stream readings from /ws.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "listen", ":8327", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	mgr := newManager(store)
	defer mgr.Disconnect()

	return server.New(serveAddr, mgr, store).Run(ctx)
}
