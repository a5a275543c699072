package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/store"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

func statusColor(s schemas.Status) *color.Color {
	switch s {
	case schemas.StatusSuccess:
		return green
	case schemas.StatusFailed:
		return red
	case schemas.StatusManualRequired:
		return yellow
	default:
		return dim
	}
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("   Starting..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// progressNotifier advances bar as targets complete.
func progressNotifier(bar *progressbar.ProgressBar) orchestrator.Notifier {
	return orchestrator.NotifierFunc(func(ctx context.Context, p orchestrator.Progress) {
		switch p.Phase {
		case orchestrator.PhaseStart:
			bar.Describe(fmt.Sprintf("   %s", truncate(p.Current.CompanyName, 24)))
		case orchestrator.PhaseDone:
			_ = bar.Add(1)
		}
	})
}

func printSummary(w io.Writer, sum schemas.RunSummary) {
	fmt.Fprintln(w)
	bold.Fprintf(w, "Run %s (%s)\n", sum.RunID, sum.Mode)
	fmt.Fprintf(w, "  Processed:       %d\n", sum.Processed)
	green.Fprintf(w, "  Succeeded:       %d\n", sum.Succeeded)
	red.Fprintf(w, "  Failed:          %d\n", sum.Failed)
	yellow.Fprintf(w, "  Manual required: %d\n", sum.ManualRequired)
	dim.Fprintf(w, "  Skipped:         %d\n", sum.Skipped)
	fmt.Fprintf(w, "  Duration:        %s\n", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Second))

	var attention []schemas.ProcessingOutcome
	for _, o := range sum.Outcomes {
		if o.Status == schemas.StatusFailed || o.Status == schemas.StatusManualRequired {
			attention = append(attention, o)
		}
	}
	if len(attention) == 0 {
		return
	}
	fmt.Fprintln(w)
	bold.Fprintln(w, "Needs attention:")
	for _, o := range attention {
		statusColor(o.Status).Fprintf(w, "  %-16s", o.Status)
		fmt.Fprintf(w, " %s  %s", o.Target.CompanyName, o.Target.URL)
		if o.ErrorKind != schemas.ErrorNone {
			dim.Fprintf(w, "  [%s]", o.ErrorKind)
		}
		fmt.Fprintln(w)
	}
}

func printPending(w io.Writer, pending []orchestrator.PendingTab) {
	fmt.Fprintln(w)
	cyan.Fprintf(w, "%d tab(s) left open for manual completion:\n", len(pending))
	for _, p := range pending {
		fmt.Fprintf(w, "  %s  %s  %s\n", p.TabID, p.Target.CompanyName, p.Reason)
	}
	dim.Fprintln(w, "Close every tab to finish. Press Ctrl+C to quit now.")
}

func printHistory(w io.Writer, records []store.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No outcomes recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tSTATUS\tCOMPANY\tURL\tFILLED\tDETAIL")
	for _, r := range records {
		o := r.Outcome
		detail := o.Message
		if o.ErrorKind != schemas.ErrorNone {
			detail = string(o.ErrorKind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			o.FinishedAt.Local().Format("2006-01-02 15:04"),
			statusColor(o.Status).Sprint(o.Status),
			o.Target.CompanyName, o.Target.URL, o.FilledFieldCount, truncate(detail, 60))
	}
	tw.Flush()
}

func printProbe(w io.Writer, r *orchestrator.ProbeReport) {
	bold.Fprintf(w, "%s\n", r.URL)
	verdict := red.Sprint("not a form page")
	if r.Relevance.IsFormPage {
		verdict = green.Sprint("form page")
	}
	fmt.Fprintf(w, "  Relevance: %.1f (%s)\n", r.Relevance.Score, verdict)
	if len(r.Relevance.Signals) > 0 {
		dim.Fprintf(w, "    %v\n", r.Relevance.Signals)
	}
	if r.Verification.Found {
		yellow.Fprintf(w, "  Verification widgets: %v\n", r.Verification.Markers)
	}

	fmt.Fprintf(w, "  Contact links: %d\n", len(r.Links))
	for i, l := range r.Links {
		if i == 5 {
			dim.Fprintf(w, "    ... %d more\n", len(r.Links)-i)
			break
		}
		fmt.Fprintf(w, "    %2d  %s  %s\n", l.Score, l.URL, l.Text)
	}

	for _, f := range r.ManualFrames {
		yellow.Fprintf(w, "  Cross-origin form frame: %s\n", f.Src)
	}
	fmt.Fprintf(w, "  Forms: %d\n", len(r.Forms))
	for i, pf := range r.Forms {
		cyan.Fprintf(w, "    #%d %s confidence=%.2f fields=%d\n", i+1, pf.Form.Method, pf.Form.Confidence, len(pf.Fields))
		for _, f := range pf.Fields {
			name := f.Field.Name
			if name == "" {
				name = f.Field.ID
			}
			fmt.Fprintf(w, "       %-22s %-10s %s\n", f.Type, f.Field.Tag+"/"+f.Field.InputType, truncate(name+" "+f.Field.Label, 40))
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
