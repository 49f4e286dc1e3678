package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/septapod/agentmapper/internal/web"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Show and drive cloud sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSyncStatus(
			getClient().SyncStatus(context.Background()),
		)
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync status",
	Args:  cobra.NoArgs,
	RunE:  syncCmd.RunE,
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Push local records to the cloud immediately",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSyncStatus(getClient().SyncNow(context.Background()))
	},
}

var syncConnectCmd = &cobra.Command{
	Use:   "connect [org-name]",
	Short: "Create a cloud organization and connect to it",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSyncConnect,
}

var syncLoadCmd = &cobra.Command{
	Use:   "load <org-id>",
	Short: "Replace local records with a cloud organization's copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSyncStatus(
			getClient().Load(context.Background(), args[0]),
		)
	},
}

var syncDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Detach from the cloud organization",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSyncStatus(
			getClient().Disconnect(context.Background()),
		)
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncConnectCmd)
	syncCmd.AddCommand(syncLoadCmd)
	syncCmd.AddCommand(syncDisconnectCmd)
}

func printSyncStatus(status web.SyncStatus, err error) error {
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(status)
	}

	fmt.Print(formatSyncStatus(status))

	return nil
}

func runSyncConnect(cmd *cobra.Command, args []string) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	}

	id, err := getClient().Connect(context.Background(), name)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(map[string]string{"id": id})
	}

	fmt.Printf("Connected to cloud organization %s.\n", id)
	fmt.Println("Share this id so other devices can load it.")

	return nil
}
