package commands

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
	"github.com/Sumatoshi-tech/githarvest/pkg/harvest"
	"github.com/Sumatoshi-tech/githarvest/pkg/records"
)

const (
	maxListedFailures = 10
	shortHashLen      = 12
)

// Ref status labels in the snapshot table.
const (
	refNew       = "new"
	refMoved     = "moved"
	refUnchanged = "unchanged"
	refDeleted   = "deleted"
)

func painter(attr color.Attribute, noColor bool) *color.Color {
	c := color.New(attr)
	if noColor {
		c.DisableColor()
	}

	return c
}

func renderSummary(w io.Writer, res harvest.Result, counts map[records.Kind]int, noColor bool) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Metric", "Value"})

	tbl.AppendRows([]table.Row{
		{"Commits extracted", humanize.Comma(int64(res.Summary.Processed))},
		{"Commits failed", humanize.Comma(int64(res.Summary.Failed))},
		{"Patches", humanize.Comma(int64(counts[records.KindPatch]))},
		{"Rewrites", humanize.Comma(int64(counts[records.KindPatchRewrite]))},
		{"Branch facts", humanize.Comma(int64(counts[records.KindCommitBranch]))},
		{"Branches / tags", fmt.Sprintf("%d / %d", len(res.Snapshot.Branches), len(res.Snapshot.Tags))},
		{"New branches", joinOrDash(res.NewBranches)},
		{"Duration", res.Duration.Round(time.Millisecond).String()},
	})
	tbl.Render()

	if res.Summary.Failed == 0 {
		painter(color.FgGreen, noColor).Fprintln(w, "extraction complete")

		return
	}

	red := painter(color.FgRed, noColor)
	red.Fprintf(w, "%s commits failed:\n", humanize.Comma(int64(res.Summary.Failed)))

	for i, id := range res.Summary.FailedIDs {
		if i == maxListedFailures {
			red.Fprintf(w, "  ... and %d more\n", len(res.Summary.FailedIDs)-maxListedFailures)

			break
		}

		red.Fprintf(w, "  %s\n", id)
	}
}

func renderRefs(w io.Writer, report snapshotReport, noColor bool) {
	var prevBranches, prevTags map[string]gitlib.Hash
	if report.Checkpoint != nil {
		prevBranches = report.Checkpoint.Branches
		prevTags = report.Checkpoint.Tags
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Kind", "Name", "Commit", "Status"})

	appendRefs(tbl, "branch", report.Current.Branches, prevBranches, noColor)
	appendRefs(tbl, "tag", report.Current.Tags, prevTags, noColor)

	state := "no checkpoint"
	if report.Checkpoint != nil {
		state = "checkpoint out of date"
		if report.UpToDate {
			state = "checkpoint up to date"
		}
	}

	tbl.AppendFooter(table.Row{"", "", "", state})
	tbl.Render()
}

func appendRefs(tbl table.Writer, kind string, current, prev map[string]gitlib.Hash, noColor bool) {
	names := slices.Sorted(maps.Keys(current))

	for _, name := range slices.Sorted(maps.Keys(prev)) {
		if _, ok := current[name]; !ok {
			names = append(names, name)
		}
	}

	for _, name := range names {
		id, ok := current[name]
		if !ok {
			id = prev[name]
		}

		status := refStatus(name, current, prev)
		tbl.AppendRow(table.Row{kind, name, id.String()[:shortHashLen], colorStatus(status, noColor)})
	}
}

func refStatus(name string, current, prev map[string]gitlib.Hash) string {
	now, inCurrent := current[name]
	before, inPrev := prev[name]

	switch {
	case !inCurrent:
		return refDeleted
	case !inPrev:
		return refNew
	case now != before:
		return refMoved
	default:
		return refUnchanged
	}
}

func colorStatus(status string, noColor bool) string {
	switch status {
	case refNew:
		return painter(color.FgGreen, noColor).Sprint(status)
	case refMoved:
		return painter(color.FgYellow, noColor).Sprint(status)
	case refDeleted:
		return painter(color.FgRed, noColor).Sprint(status)
	default:
		return status
	}
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}

	return strings.Join(items, ", ")
}
