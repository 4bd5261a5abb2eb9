package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/KaramelBytes/satark-cli/internal/pipeline"
)

var statusColor = map[pipeline.Status]*color.Color{
	pipeline.StatusCritical: color.New(color.FgRed, color.Bold),
	pipeline.StatusModerate: color.New(color.FgYellow),
	pipeline.StatusSafe:     color.New(color.FgGreen),
}

// filterDistricts applies status/state filters, then keeps the top n by gap.
func filterDistricts(ds []pipeline.DistrictReport, status, state string, top int) ([]pipeline.DistrictReport, error) {
	var want pipeline.Status
	if status != "" {
		want = pipeline.Status(strings.ToUpper(strings.TrimSpace(status)))
		if _, ok := statusColor[want]; !ok {
			return nil, fmt.Errorf("invalid --status: %s (use critical|moderate|safe)", status)
		}
	}
	out := make([]pipeline.DistrictReport, 0, len(ds))
	for _, d := range ds {
		if want != "" && d.Status != want {
			continue
		}
		if state != "" && !strings.EqualFold(d.State, state) {
			continue
		}
		out = append(out, d)
	}
	if top > 0 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Gap > out[j].Gap })
		if len(out) > top {
			out = out[:top]
		}
	}
	return out, nil
}

func renderDistricts(w io.Writer, ds []pipeline.DistrictReport, reasons bool) {
	tw := tablewriter.NewWriter(w)
	header := []string{"State", "District", "Expected", "Actual", "Pending", "Gap %", "Efficiency", "Status", "Anomaly"}
	if reasons {
		header = append(header, "Reasoning")
	}
	tw.SetHeader(header)
	tw.SetAutoWrapText(false)
	for _, d := range ds {
		anomaly := ""
		if d.IsAnomaly {
			anomaly = "yes"
		}
		status := string(d.Status)
		if c, ok := statusColor[d.Status]; ok {
			status = c.Sprint(status)
		}
		row := []string{
			d.State,
			d.District,
			strconv.FormatInt(d.Expected, 10),
			strconv.FormatInt(d.Actual, 10),
			strconv.FormatInt(d.Pending, 10),
			strconv.FormatFloat(d.Gap, 'f', 1, 64),
			strconv.FormatFloat(d.Efficiency, 'f', 2, 64),
			status,
			anomaly,
		}
		if reasons {
			row = append(row, d.Reasoning)
		}
		tw.Append(row)
	}
	tw.Render()
}

func printSummary(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "✓ Processed %d districts (run %s)\n", res.Summary.Processed, res.RunID)
	fmt.Fprintf(w, "  Pending updates: %d\n", res.Summary.TotalPending)
	crit := fmt.Sprintf("%d", res.Summary.CriticalCount)
	if res.Summary.CriticalCount > 0 {
		crit = statusColor[pipeline.StatusCritical].Sprint(crit)
	}
	fmt.Fprintf(w, "  Critical districts: %s\n", crit)
	fmt.Fprintf(w, "  Anomalies: %d (model %s)\n", res.Detection.Count, res.Detection.Mode)
	if res.Detection.Mismatch != nil {
		fmt.Fprintf(w, "⚠ Stored model was unusable (%v); a new one was trained\n", res.Detection.Mismatch)
	}
}
