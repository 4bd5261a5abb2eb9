package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/satark-cli/internal/utils"
)

var (
	anaJSON    bool
	anaOutput  string
	anaStatus  string
	anaState   string
	anaTop     int
	anaReasons bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Rank districts by update gap over the stored master tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := st.Analyze(cmd.Context())
		if err != nil {
			return err
		}
		districts, err := filterDistricts(res.Districts, anaStatus, anaState, anaTop)
		if err != nil {
			return err
		}
		view := *res
		view.Districts = districts

		if anaOutput != "" {
			b, err := utils.PrettyJSON(view)
			if err != nil {
				return err
			}
			if err := utils.SafeWriteFile(anaOutput, b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d districts to %s\n", len(districts), anaOutput)
			return nil
		}
		if anaJSON {
			b, err := utils.PrettyJSON(view)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		}

		out := cmd.OutOrStdout()
		printSummary(out, res)
		if len(districts) == 0 {
			fmt.Fprintln(out, "(no districts)")
			return nil
		}
		renderDistricts(out, districts, anaReasons)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "print the result as JSON")
	analyzeCmd.Flags().StringVarP(&anaOutput, "output", "o", "", "write the JSON result to a file")
	analyzeCmd.Flags().StringVar(&anaStatus, "status", "", "only show districts with this status (critical|moderate|safe)")
	analyzeCmd.Flags().StringVar(&anaState, "state", "", "only show districts in this state")
	analyzeCmd.Flags().IntVar(&anaTop, "top", 0, "show the N districts with the largest gap")
	analyzeCmd.Flags().BoolVar(&anaReasons, "reasons", false, "include the reasoning column")
}
