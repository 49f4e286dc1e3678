package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var insightForce bool

var insightCmd = &cobra.Command{
	Use:   "insight <exercise|session|workshop> [id]",
	Short: "Fetch an AI insight",
	Long: `Fetch the AI insight for one exercise, one session or the whole
workshop, built from the answers stored in the daemon. Cached insights are
reused unless --force is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInsight,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached insights",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [type] [id]",
	Short: "Drop cached insights",
	Long: `Drop cached insights. Without arguments every cached insight is
removed; with a type (and id) only that entry is.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runCacheClear,
}

func init() {
	insightCmd.Flags().BoolVar(
		&insightForce, "force", false,
		"Regenerate even when a cached insight exists",
	)

	cacheCmd.AddCommand(cacheClearCmd)
}

func runInsight(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	kind := strings.ToLower(args[0])
	var id string
	if len(args) > 1 {
		id = args[1]
	}

	switch kind {
	case "exercise", "session":
		if id == "" {
			return fmt.Errorf("%s insight needs an id", kind)
		}
	case "workshop":
		if id != "" {
			return fmt.Errorf("workshop insight takes no id")
		}
	default:
		return fmt.Errorf("unknown insight type %q", kind)
	}

	resp, err := getClient().Insight(ctx, kind, id, insightForce)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp)
	}

	fmt.Print(formatInsight(resp))

	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var kind, id string
	if len(args) > 0 {
		kind = args[0]
	}
	if len(args) > 1 {
		id = args[1]
	}

	if err := getClient().ClearCache(ctx, kind, id); err != nil {
		return err
	}

	fmt.Println("Cache cleared.")

	return nil
}
