package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obdlink/internal/manager"
	"github.com/shaunagostinho/obdlink/internal/profile"
	"github.com/shaunagostinho/obdlink/internal/transport"
)

var (
	configPath  string
	profileName string

	// Per-invocation overrides on top of the selected profile.
	portFlag     string
	baudFlag     int
	protocolFlag string
	timeoutFlag  int

	demoMode bool
)

var rootCmd = &cobra.Command{
	Use:   "obdlink",
	Short: "OBD-II adapter connection manager and diagnostic tool",
	Long: `obdlink manages a persistent connection to an ELM327-class OBD-II
adapter over USB, Bluetooth serial, or WiFi (TCP), and runs diagnostics
over it: trouble codes, live sensor data, and vehicle identification.

Connection settings come from a named profile in the config file
(default ~/.obdlink/config.yaml); flags override individual fields for
one invocation. With --demo, commands run against a simulated vehicle
and no hardware is touched.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.obdlink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Connection profile to use (default: the configured default)")
	rootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "Serial port, Bluetooth device, or host:port (overrides profile)")
	rootCmd.PersistentFlags().IntVarP(&baudFlag, "baud", "b", 0, "Baud rate (overrides profile)")
	rootCmd.PersistentFlags().StringVar(&protocolFlag, "protocol", "", "OBD protocol, e.g. auto, can_11_500, iso_9141_2 (overrides profile)")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 0, "Command timeout in seconds (overrides profile)")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "Run against a simulated vehicle instead of real hardware")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore() (*profile.Store, error) {
	return profile.Open(configPath)
}

// resolveConfig picks the profile (named, or the store default) and
// applies flag overrides on top.
func resolveConfig(store *profile.Store) (profile.ConnectionConfig, error) {
	cfg := store.DefaultProfile()
	if profileName != "" {
		named, err := store.Profile(profileName)
		if err != nil {
			return profile.ConnectionConfig{}, err
		}
		cfg = named
	}

	if portFlag != "" {
		cfg.Port = portFlag
	}
	if baudFlag != 0 {
		cfg.BaudRate = baudFlag
	}
	if protocolFlag != "" {
		cfg.Protocol = protocolFlag
		cfg.AutoDetect = protocolFlag == "auto"
	}
	if timeoutFlag != 0 {
		cfg.TimeoutSec = float64(timeoutFlag)
	}
	return cfg, cfg.Validate()
}

// newManager builds a manager over real hardware, or over the simulated
// adapter when --demo is set. Session history lands in the store either way.
func newManager(store *profile.Store) *manager.Manager {
	var (
		loc  transport.Locator = transport.NewSystemLocator()
		dial transport.Dialer  = transport.NewSystemDialer()
	)
	if demoMode {
		loc = transport.NewDemoLocator()
		dial = transport.NewDemoDialer()
	}
	m := manager.New(loc, dial)
	m.OnSessionEnd = store.RecordSession
	return m
}

// connect is the shared startup path for one-shot commands: open the
// store, resolve config, connect, record the success.
func connect(ctx context.Context) (*manager.Manager, *profile.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := resolveConfig(store)
	if err != nil {
		return nil, nil, err
	}

	mgr := newManager(store)
	info, err := mgr.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store.RecordConnection(info.Port, info.Protocol, info.BaudRate)
	fmt.Printf("Connected to %s (%s, %s)\n", info.Port, info.Kind, info.Protocol)
	return mgr, store, nil
}
