package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/pluginhost/internal/app"
	"github.com/dshills/pluginhost/internal/plugin"
)

func newCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load every plugin and report availability without activating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			host, err := app.New(app.Options{Config: cfg})
			if err != nil {
				return err
			}
			defer host.Shutdown(context.Background())

			if err := host.RegisterPlugins(); err != nil {
				return err
			}

			report := check(cmd.Context(), host.Manager(), cfg.Plugins.Enabled)
			if err := report.write(cmd.OutOrStdout()); err != nil {
				return err
			}
			if n := len(report.problems); n > 0 {
				return fmt.Errorf("%d enabled plugins cannot be activated: %s", n, strings.Join(report.problems, ", "))
			}
			return nil
		},
	}
}

type checkRow struct {
	name      string
	version   string
	available bool
	enabled   bool
	deps      []plugin.Dependency
}

type checkReport struct {
	rows     []checkRow
	problems []string
}

// check reports availability for every registered plugin and lists the
// enabled plugins that are unknown or unavailable.
func check(ctx context.Context, m *plugin.Manager, enabled []string) checkReport {
	available := make(map[string]bool)
	for _, p := range m.AvailablePlugins(ctx) {
		available[p.Name()] = true
	}
	want := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		want[name] = true
	}

	var report checkReport
	for _, p := range m.All() {
		row := checkRow{
			name:      p.Name(),
			version:   p.Version(),
			available: available[p.Name()],
			enabled:   want[p.Name()],
		}
		if d, ok := p.(plugin.DependencyDeclarer); ok {
			row.deps = d.Dependencies()
		}
		report.rows = append(report.rows, row)
		if row.enabled && !row.available {
			report.problems = append(report.problems, row.name+" (unavailable)")
		}
	}
	for _, name := range enabled {
		if !m.Has(name) {
			report.problems = append(report.problems, name+" (not registered)")
		}
	}
	return report
}

func (r checkReport) write(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLUGIN\tVERSION\tENABLED\tAVAILABLE\tDEPENDENCIES")
	for _, row := range r.rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			row.name, row.version, yesNo(row.enabled), yesNo(row.available), formatDeps(row.deps))
	}
	return tw.Flush()
}

func formatDeps(deps []plugin.Dependency) string {
	if len(deps) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(deps))
	for _, d := range deps {
		s := d.Name
		if d.VersionRange != "" {
			s += " " + d.VersionRange
		}
		if !d.Required {
			s += " (optional)"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
