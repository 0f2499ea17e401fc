package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/compare-engine/internal/analysis"
	"github.com/sells-group/compare-engine/internal/diff"
	"github.com/sells-group/compare-engine/internal/entity"
)

var compareCmd = &cobra.Command{
	Use:   "compare <name-a> <name-b>",
	Short: "Show the fields two entities differ in",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		d, err := loadDirectory(ctx, cfg)
		if err != nil {
			return err
		}

		a, sa := d.Lookup(args[0])
		if sa != entity.StatusFound {
			return eris.Errorf("compare: %q %s", args[0], sa)
		}
		b, sb := d.Lookup(args[1])
		if sb != entity.StatusFound {
			return eris.Errorf("compare: %q %s", args[1], sb)
		}

		changes := engine.Diff(&a, &b)
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			changes = engine.DiffRaw(a.Raw, b.Raw)
		}
		showAnalysis, _ := cmd.Flags().GetBool("analysis")

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			resp := map[string]any{"a": a.Name, "b": b.Name, "differences": changes}
			if showAnalysis {
				an, err := newAnalyzer(cfg, engine)
				if err != nil {
					return err
				}
				defer an.Close() //nolint:errcheck
				resp["analysis"] = an.Compare(ctx, &a, &b)
			}
			return writeJSON(os.Stdout, resp)
		}

		formatDiff(os.Stdout, a.Name, b.Name, changes)
		if showAnalysis {
			an, err := newAnalyzer(cfg, engine)
			if err != nil {
				return err
			}
			defer an.Close() //nolint:errcheck
			formatOutcome(os.Stdout, an.Compare(ctx, &a, &b))
		}
		return nil
	},
}

func init() {
	compareCmd.Flags().Bool("raw", false, "diff the raw source records instead of the canonical attributes")
	compareCmd.Flags().Bool("analysis", false, "append a narrative comparison")
	compareCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(compareCmd)
}

// formatDiff writes the differing fields as a three-column table.
func formatDiff(out io.Writer, nameA, nameB string, changes diff.Result) {
	if len(changes) == 0 {
		_, _ = fmt.Fprintf(out, "%s and %s have no differing fields.\n", nameA, nameB)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "FIELD\t%s\t%s\n", truncate(nameA, 40), truncate(nameB, 40))
	_, _ = fmt.Fprintln(w, "-----\t-\t-")
	for _, c := range changes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", diff.Humanize(c.Field), truncate(orDash(c.Left), 40), truncate(orDash(c.Right), 40))
	}
	_ = w.Flush()
}

func formatOutcome(out io.Writer, o analysis.Outcome) {
	src := o.Source
	if o.Cached {
		src += ", cached"
	}
	_, _ = fmt.Fprintf(out, "\nAnalysis (%s):\n%s\n", src, o.Text)
	if o.Err != "" {
		_, _ = fmt.Fprintf(out, "(remote analysis unavailable: %s)\n", o.Err)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
