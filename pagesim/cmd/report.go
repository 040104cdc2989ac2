package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pagesim/datarecording"
)

var reportCmd = &cobra.Command{
	Use:   "report [database.sqlite3]",
	Short: "Summarize a recorded simulation.",
	Long: `Print the run information and the number of rows of every table ` +
		`stored by a simulation that ran with --record.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		return writeReport(backgroundIfNil(cmd.Context()), reader,
			cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func writeReport(
	ctx context.Context,
	reader datarecording.DataReader,
	out io.Writer,
) error {
	tables, err := reader.ListTables(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	for _, t := range tables {
		if t != datarecording.ExecInfoTable {
			continue
		}

		if err := writeExecInfo(ctx, reader, tw); err != nil {
			return err
		}

		fmt.Fprintln(tw)
	}

	fmt.Fprintln(tw, "Table\tRows")

	for _, t := range tables {
		n, err := reader.Count(ctx, t)
		if err != nil {
			return err
		}

		fmt.Fprintf(tw, "%s\t%d\n", t, n)
	}

	return tw.Flush()
}

func writeExecInfo(
	ctx context.Context,
	reader datarecording.DataReader,
	out io.Writer,
) error {
	reader.MapTable(datarecording.ExecInfoTable, datarecording.ExecInfo{})

	rows, _, err := reader.Query(ctx, datarecording.ExecInfoTable,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	for _, row := range rows {
		info := row.(*datarecording.ExecInfo)
		fmt.Fprintf(out, "%s\t%s\n", info.Property, info.Value)
	}

	return nil
}
