package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a fresh anomaly model on the stored masters and persist it",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := st.Train(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.Model == nil {
			fmt.Fprintf(out, "⚠ Only %d district(s) available; at least 2 are needed to train\n", res.Summary.Processed)
			return nil
		}
		fmt.Fprintf(out, "✓ Trained model %s on %d districts (%d trees, %d features)\n",
			res.Model.ID, res.Summary.Processed, len(res.Model.Trees), res.Model.NumFeatures())
		fmt.Fprintf(out, "  Anomalies detected: %d\n", res.Detection.Count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
