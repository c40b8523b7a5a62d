package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"vpsdash/internal/backup"
	"vpsdash/internal/health"
	"vpsdash/internal/probe"
	"vpsdash/pkg/utils"
)

// PrintHeader prints the application header
func PrintHeader() {
	fmt.Println(RenderBanner())
	fmt.Println(RenderSubtitle())
}

// PrintSection prints a section header
func PrintSection(title string) {
	fmt.Println(RenderSectionStart(title))
}

// PrintSectionEnd prints a section footer
func PrintSectionEnd() {
	fmt.Println(RenderSectionEnd())
}

// PrintStatus prints a status message
func PrintStatus(status, message string) {
	fmt.Println(RenderStatus(status, message))
}

// CreateBeautifulList renders a bulleted key/value list sorted by key
func CreateBeautifulList(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result strings.Builder
	for _, k := range keys {
		result.WriteString(RenderKeyValue(k, data[k]))
		result.WriteString("\n")
	}
	return result.String()
}

// FormatValue renders a probe value: percentages get one decimal, strings
// pass through, a missing value is a dash.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return fmt.Sprintf("%.1f", x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// RenderSnapshot renders a health snapshot as a status table
func RenderSnapshot(s health.Snapshot, age time.Duration) string {
	var b strings.Builder

	b.WriteString(RenderSectionStart("Health"))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Overall", RenderBadge(s.OverallStatus)))
	b.WriteString("\n")
	b.WriteString(RenderKeyValue("Taken", fmt.Sprintf("%s (%s ago)", s.TakenAt.Local().Format(time.DateTime), utils.FormatDuration(age))))
	b.WriteString("\n")

	if len(s.Results) == 0 {
		b.WriteString(RenderStatus("info", "No probe results yet"))
		b.WriteString("\n")
		b.WriteString(RenderSectionEnd())
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString("\n  ")
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-16s %-9s %-12s %s", "PROBE", "STATUS", "VALUE", "MESSAGE")))
	b.WriteString("\n")
	for _, r := range s.Results {
		b.WriteString("  ")
		b.WriteString(fmt.Sprintf("%-16s ", utils.TruncateString(r.Name, 16)))
		b.WriteString(StatusStyle(r.Status).Render(fmt.Sprintf("%-9s", r.Status)))
		b.WriteString(fmt.Sprintf(" %-12s ", utils.TruncateString(FormatValue(r.Value), 12)))
		b.WriteString(MutedStyle.Render(utils.TruncateString(resultMessage(r), 48)))
		b.WriteString("\n")
	}

	if bars := utilizationBars(s.Results); bars != "" {
		b.WriteString("\n")
		b.WriteString(bars)
	}

	b.WriteString(RenderSectionEnd())
	b.WriteString("\n")
	return b.String()
}

// utilizationBars draws a bar for each percentage reading
func utilizationBars(results []probe.Result) string {
	var b strings.Builder
	for _, r := range results {
		pct, ok := r.Value.(float64)
		if r.Unit != probe.UnitPercent || !ok {
			continue
		}
		bar := RenderProgressBar(pct, 20, r.Status) + " " + utils.FormatPercentage(pct)
		b.WriteString(RenderKeyValue(utils.TruncateString(r.Name, 16), bar))
		b.WriteString("\n")
	}
	return b.String()
}

func resultMessage(r probe.Result) string {
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}

// outcomeStatus maps a run outcome onto the shared status palette
func outcomeStatus(o backup.Outcome) probe.Status {
	switch o {
	case backup.OutcomeSuccess:
		return probe.StatusOK
	case backup.OutcomePartial:
		return probe.StatusWarn
	case backup.OutcomeFailed:
		return probe.StatusCrit
	default:
		return probe.StatusUnknown
	}
}

// RenderRuns renders a run list, one line per run
func RenderRuns(runs []backup.Run) string {
	var b strings.Builder

	b.WriteString(RenderSectionStart("Backup Runs"))
	b.WriteString("\n")
	if len(runs) == 0 {
		b.WriteString(RenderStatus("info", "No backup runs recorded"))
		b.WriteString("\n")
	} else {
		b.WriteString("  ")
		b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-6s %-10s %-9s %-20s %-9s %s", "ID", "TRIGGER", "OUTCOME", "STARTED", "DURATION", "SIZE")))
		b.WriteString("\n")
		for i := range runs {
			run := &runs[i]
			duration := "-"
			if run.Finished() {
				duration = utils.FormatDuration(run.Duration())
			}
			b.WriteString("  ")
			b.WriteString(fmt.Sprintf("%-6d %-10s ", run.ID, run.Trigger))
			b.WriteString(StatusStyle(outcomeStatus(run.Outcome)).Render(fmt.Sprintf("%-9s", run.Outcome)))
			b.WriteString(fmt.Sprintf(" %-20s %-9s %s", run.StartedAt.Local().Format(time.DateTime), duration, utils.FormatBytes(run.BytesTransferred)))
			b.WriteString("\n")
		}
	}
	b.WriteString(RenderSectionEnd())
	b.WriteString("\n")
	return b.String()
}

// RenderRun renders one run with its step log
func RenderRun(run backup.Run) string {
	var b strings.Builder

	b.WriteString(RenderSectionStart(fmt.Sprintf("Backup Run #%d", run.ID)))
	b.WriteString("\n")

	data := map[string]string{
		"Trigger": string(run.Trigger),
		"Outcome": StatusStyle(outcomeStatus(run.Outcome)).Render(string(run.Outcome)),
		"Started": run.StartedAt.Local().Format(time.DateTime),
		"Retries": fmt.Sprintf("%d", run.RetriesUsed),
		"Size":    utils.FormatBytes(run.BytesTransferred),
	}
	if run.Finished() {
		data["Duration"] = utils.FormatDuration(run.Duration())
	}
	if run.Key != "" {
		data["Key"] = run.Key
	}
	if run.Reason != "" {
		data["Reason"] = run.Reason
	}
	b.WriteString(CreateBeautifulList(data))

	if len(run.Steps) > 0 {
		b.WriteString("\n  ")
		b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-10s %-8s %-8s %-8s %s", "STEP", "ATTEMPT", "RESULT", "TOOK", "DETAIL")))
		b.WriteString("\n")
		for _, s := range run.Steps {
			icon := SuccessStyle.Render(IconSuccess)
			if s.Outcome != backup.StepSuccess {
				icon = ErrorStyle.Render(IconError)
			}
			b.WriteString(fmt.Sprintf("  %-10s %-8d %s %-6s %-8s %s\n",
				s.Step, s.Attempt, icon, s.Outcome, utils.FormatDuration(s.Duration()),
				MutedStyle.Render(utils.TruncateString(s.Detail, 48))))
		}
	}

	b.WriteString(RenderSectionEnd())
	b.WriteString("\n")
	return b.String()
}
