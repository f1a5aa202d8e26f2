package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/sync"
)

var (
	greenCheck = color.GreenString("✔")
	redCross   = color.RedString("✘")
	yellowDot  = color.YellowString("●")

	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
)

// BeQuietError is returned by commands that already reported their failure.
type BeQuietError struct{}

func (BeQuietError) Error() string {
	return "command failed"
}

func logError(err error, correlation, msg string) error {
	if correlation != "" {
		log.Error().Msgf("%s %s (correlation ID: %s)", redCross, msg, correlation)
	} else {
		log.Error().Msgf("%s %s", redCross, msg)
	}
	log.Error().Msgf("error: %v", err)
	return BeQuietError{}
}

func logSuccess(format string, args ...any) {
	log.Info().Msgf("%s %s", greenCheck, fmt.Sprintf(format, args...))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func applyTableFormat(t table.Writer) {
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Options.SeparateRows = false
}

func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row(header))
	applyTableFormat(t)
	return t
}

// confirm asks a yes/no question on stdin. Anything but y/yes is a no.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func since(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}

func until(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return "in " + time.Until(t).Round(time.Second).String()
}

// printReports renders one row per report and lists the failed items below the table.
func printReports(reports []*sync.Report) {
	t := newTable("Job", "Carrier", "Customer", "Total", "Changed", "Unchanged", "Skipped", "Failed", "Took")
	var failures []string
	for _, r := range reports {
		failed := fmt.Sprint(r.Failed)
		if r.Failed > 0 {
			failed = color.RedString(failed)
		}
		t.AppendRow(table.Row{
			bold(r.Job), r.Carrier, r.Customer,
			r.Total, r.Changed, r.Unchanged, r.Skipped, failed,
			r.Took.Round(time.Millisecond),
		})
		for _, fl := range r.Failures {
			failures = append(failures, fmt.Sprintf("  %s %s/%s %s: %s", redCross, r.Carrier, r.Job, bold(fl.Item), fl.Error))
		}
	}
	t.Render()
	for _, line := range failures {
		fmt.Println(line)
	}
}
