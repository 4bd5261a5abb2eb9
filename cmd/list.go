package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/satark-cli/internal/utils"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored master tables and the current model",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		snap := st.Snapshot()
		out := cmd.OutOrStdout()
		if listJSON {
			b, err := utils.PrettyJSON(snap)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}

		tw := tablewriter.NewWriter(out)
		tw.SetHeader([]string{"Dataset", "Rows", "Columns", "Revision", "Saved"})
		for _, m := range snap.Masters {
			tw.Append([]string{
				string(m.Kind),
				strconv.Itoa(m.Rows),
				strconv.Itoa(len(m.Columns)),
				shortRev(m.Revision),
				fmtTime(m.SavedAt),
			})
		}
		tw.Render()

		if snap.Model == nil {
			fmt.Fprintln(out, "Model: (none)")
			return nil
		}
		m := snap.Model
		fmt.Fprintf(out, "Model: %s\n", m.ID)
		fmt.Fprintf(out, "  Features: %s\n", strings.Join(m.Features, ", "))
		fmt.Fprintf(out, "  Trees: %d  Trained on: %d districts  At: %s\n", m.Trees, m.TrainedOn, fmtTime(m.TrainedAt))
		return nil
	},
}

func shortRev(r string) string {
	if len(r) > 8 {
		return r[:8]
	}
	if r == "" {
		return "-"
	}
	return r
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print the snapshot as JSON")
}
