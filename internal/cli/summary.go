package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/nsafar1/vbmgrid/internal/app"
)

type palette struct {
	ok, warn, bad, bold *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		bad:  color.New(color.FgRed),
		bold: color.New(color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.ok, p.warn, p.bad, p.bold} {
			c.DisableColor()
		}
	}
	return p
}

// count pads n to width and colours it with c when it is non-zero. Padding
// happens first so escape codes do not break column alignment.
func count(c *color.Color, n, width int) string {
	s := fmt.Sprintf("%-*d", width, n)
	if n == 0 {
		return s
	}
	return c.Sprint(s)
}

// printSummary writes the per-stage table and the aggregation result.
func printSummary(w io.Writer, result *app.Result, noColor bool) {
	if result == nil {
		return
	}
	p := newPalette(noColor)

	if result.Cohort != nil && len(result.Cohort.Unmatched) > 0 {
		fmt.Fprintf(w, "%s %d match-list IDs have no subject (see %s)\n", p.warn.Sprint("!"), len(result.Cohort.Unmatched), app.UnmatchedFile)
	}

	if result.Report != nil && len(result.Report.Stages) > 0 {
		fmt.Fprintf(w, "\n%s\n", p.bold.Sprintf("Processed %d subjects", len(result.Report.Subjects)))
		width := len("STAGE")
		for _, name := range result.Report.Stages {
			width = max(width, len(name))
		}
		fmt.Fprintf(w, "%-*s  %-9s  %-7s  %s\n", width, "STAGE", "SUCCEEDED", "SKIPPED", "FAILED")
		for _, c := range result.Report.Counts() {
			fmt.Fprintf(w, "%-*s  %s  %s  %s\n", width, c.Stage, count(p.ok, c.Succeeded, 9), count(p.warn, c.Skipped, 7), count(p.bad, c.Failed, 0))
		}
	}

	if agg := result.Aggregation; agg != nil {
		fmt.Fprintf(w, "\n%s\n", p.bold.Sprint("Aggregation"))
		fmt.Fprintf(w, "  accepted: %s\n", count(p.ok, len(agg.Accepted), 0))
		fmt.Fprintf(w, "  rejected: %s\n", count(p.warn, len(agg.Rejections), 0))
		for _, r := range agg.Rejections {
			fmt.Fprintf(w, "    %s %s: %s\n", p.warn.Sprint("-"), r.Subject, r.Reason)
		}
		if agg.ArtifactPath != "" {
			fmt.Fprintf(w, "  artifact: %s (display range %g)\n", agg.ArtifactPath, agg.DisplayRange)
		}
		if agg.Uploaded {
			fmt.Fprintf(w, "  uploaded: %s\n", p.ok.Sprint("yes"))
		}
	}
}
