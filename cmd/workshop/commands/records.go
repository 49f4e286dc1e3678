package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var recordsFile string

var recordsCmd = &cobra.Command{
	Use:     "records",
	Aliases: []string{"record"},
	Short:   "Read and write exercise answers",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records",
	Args:  cobra.NoArgs,
	RunE:  runRecordsList,
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordsGet,
}

var recordsPutCmd = &cobra.Command{
	Use:   "put <id> [json]",
	Short: "Store the answers for one exercise",
	Long: `Store the answers for one exercise. The JSON document comes from
the argument, from --file, or from stdin when neither is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRecordsPut,
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordsDelete,
}

var orgCmd = &cobra.Command{
	Use:   "org <name>",
	Short: "Set the organization name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getClient().SetOrgName(context.Background(), args[0])
	},
}

func init() {
	recordsPutCmd.Flags().StringVarP(
		&recordsFile, "file", "f", "",
		"Read the JSON document from this file",
	)

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsGetCmd)
	recordsCmd.AddCommand(recordsPutCmd)
	recordsCmd.AddCommand(recordsDeleteCmd)
}

func runRecordsList(cmd *cobra.Command, args []string) error {
	resp, err := getClient().Records(context.Background())
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(resp)
	}

	fmt.Print(formatRecords(resp))

	return nil
}

func runRecordsGet(cmd *cobra.Command, args []string) error {
	raw, err := getClient().Record(context.Background(), args[0])
	if err != nil {
		return err
	}

	return outputJSON(raw)
}

func runRecordsPut(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	if err := getClient().PutRecord(
		context.Background(), args[0], doc,
	); err != nil {
		return err
	}

	fmt.Printf("Stored %s.\n", args[0])

	return nil
}

func runRecordsDelete(cmd *cobra.Command, args []string) error {
	err := getClient().DeleteRecord(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %s.\n", args[0])

	return nil
}

// readDocument returns the record body from the second argument, --file
// or stdin, in that order, and checks that it is JSON.
func readDocument(args []string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case len(args) > 1:
		data = []byte(args[1])

	case recordsFile != "":
		data, err = os.ReadFile(recordsFile)

	default:
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("record is not valid JSON")
	}

	return data, nil
}
