package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	gometrics "github.com/rcrowley/go-metrics"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable draws rounded box tables on a terminal and plain ASCII
// elsewhere so piped output stays greppable.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment, fancy bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	if fancy {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatBytes(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0ms"
	case d < time.Second:
		return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 1, 64) + "ms"
	}
	return d.Round(10 * time.Millisecond).String()
}

// renderStepStats summarizes the per-step timers recorded in reg.
func renderStepStats(reg gometrics.Registry, fancy bool) string {
	type stepRow struct {
		name  string
		timer gometrics.Timer
	}
	var steps []stepRow
	reg.Each(func(name string, m interface{}) {
		t, ok := m.(gometrics.Timer)
		if !ok || !strings.HasPrefix(name, "step.") {
			return
		}
		steps = append(steps, stepRow{name: strings.TrimPrefix(name, "step."), timer: t})
	})
	sort.Slice(steps, func(i, j int) bool { return steps[i].name < steps[j].name })

	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		snap := s.timer.Snapshot()
		var errs int64
		if c, ok := reg.Get("step." + s.name + ".errors").(gometrics.Counter); ok {
			errs = c.Count()
		}
		rows = append(rows, []string{
			s.name,
			strconv.FormatInt(snap.Count(), 10),
			formatDuration(time.Duration(snap.Mean())),
			formatDuration(time.Duration(snap.Percentile(0.95))),
			formatDuration(time.Duration(snap.Max())),
			strconv.FormatInt(errs, 10),
		})
	}
	out := renderTable(
		[]string{"Step", "Calls", "Mean", "p95", "Max", "Errors"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
		fancy,
	)
	if m, ok := reg.Get("encode.bytes").(gometrics.Meter); ok {
		out += fmt.Sprintf("\nencoded %s", formatBytes(m.Count()))
	}
	return out
}
