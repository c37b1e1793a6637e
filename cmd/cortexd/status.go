package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/pipeline"
)

// renderStatus formats a health snapshot as a console table.
func renderStatus(st pipeline.Status) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("pipeline %s · up %ds · frames %d · evicted %d · merged %d (%d partial)",
		st.Status, st.UptimeSeconds, st.Ring.Published, st.Ring.Evicted,
		st.Aggregator.Emitted, st.Aggregator.Partials))

	tw.AppendHeader(table.Row{"Role", "State", "Restarts", "Heartbeat Age", "Delivered", "Skipped"})
	for _, d := range st.Workers {
		stats := st.Ring.Cursors[d.InstanceID]
		state := d.State.String()
		if d.Degraded {
			state = "degraded"
		}
		age := "-"
		if !d.LastHeartbeat.IsZero() {
			age = time.Since(d.LastHeartbeat).Round(time.Millisecond).String()
		}
		tw.AppendRow(table.Row{
			d.Role.String(), state, d.RestartCount, age, stats.Delivered, stats.Skipped,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return tw.Render()
}
