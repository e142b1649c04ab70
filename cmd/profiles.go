package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obdlink/internal/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage connection profiles and session history",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	RunE:  runProfilesList,
}

var profilesSaveCmd = &cobra.Command{
	Use:   "save NAME",
	Short: "Save the current connection flags as a named profile",
	Long: `Save a profile built from the built-in defaults plus any --port,
--baud, --protocol, and --timeout flags given on this invocation.`,
	Args: cobra.ExactArgs(1),
	RunE: runProfilesSave,
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a named profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesDelete,
}

var profilesDefaultCmd = &cobra.Command{
	Use:   "default NAME",
	Short: "Set the default profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesDefault,
}

var profilesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent connection sessions",
	RunE:  runProfilesHistory,
}

func init() {
	profilesCmd.AddCommand(profilesListCmd, profilesSaveCmd, profilesDeleteCmd,
		profilesDefaultCmd, profilesHistoryCmd)
	rootCmd.AddCommand(profilesCmd)
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	names := store.ProfileNames()
	sort.Strings(names)

	for _, name := range names {
		cfg, err := store.Profile(name)
		if err != nil {
			continue
		}
		fmt.Println(formatProfile(name, cfg))
	}
	if last := store.LastSuccessful(); last != nil {
		fmt.Printf("Last successful: %s (%s) at %s\n",
			last.Port, last.Protocol, last.At.Format("2006-01-02 15:04"))
	}
	return nil
}

func formatProfile(name string, cfg profile.ConnectionConfig) string {
	return fmt.Sprintf("  %-15s port=%s baud=%d protocol=%s timeout=%gs retries=%d",
		name, cfg.Port, cfg.BaudRate, cfg.Protocol, cfg.TimeoutSec, cfg.MaxRetries)
}

func runProfilesSave(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	cfg := profile.DefaultConnectionConfig()
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

	if err := store.SaveProfile(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("Profile %q saved to %s\n", args[0], store.Path())
	return nil
}

func runProfilesDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.DeleteProfile(args[0]); err != nil {
		return err
	}
	fmt.Printf("Profile %q deleted\n", args[0])
	return nil
}

func runProfilesDefault(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.SetDefaultProfile(args[0]); err != nil {
		return err
	}
	if err := store.Save(); err != nil {
		return err
	}
	fmt.Printf("Default profile is now %q\n", args[0])
	return nil
}

func runProfilesHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	sessions := store.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No session history.")
		return nil
	}
	for _, s := range sessions {
		dur := s.Ended.Sub(s.Started).Round(time.Second)
		fmt.Printf("  %s  %-20s %-12s %v, %d DTC(s)\n",
			s.Started.Format("2006-01-02 15:04"), s.Port, s.Protocol, dur, s.DTCCount)
	}
	return nil
}
