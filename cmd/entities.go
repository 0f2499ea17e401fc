package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/compare-engine/internal/diff"
	"github.com/sells-group/compare-engine/internal/entity"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List canonicalized entities from the configured sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}

		d, err := loadDirectory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		es := d.Filter(f)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, es)
		}
		if len(es) == 0 {
			fmt.Fprintln(os.Stderr, "No entities found.")
			return nil
		}
		formatEntities(os.Stdout, es)
		return nil
	},
}

func filterFromFlags(cmd *cobra.Command) (entity.Filter, error) {
	var f entity.Filter
	f.Classification, _ = cmd.Flags().GetString("classification")
	f.Region, _ = cmd.Flags().GetString("region")
	f.Services, _ = cmd.Flags().GetString("services")
	for _, name := range []string{"min-mw", "max-mw"} {
		raw, _ := cmd.Flags().GetString(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return f, eris.Wrapf(err, "invalid --%s", name)
		}
		if name == "min-mw" {
			f.MinMW = &v
		} else {
			f.MaxMW = &v
		}
	}
	return f, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("classification", "", "only entities with this classification")
	cmd.Flags().String("region", "", "only entities in this region")
	cmd.Flags().String("services", "", "only entities whose services mention this text")
	cmd.Flags().String("min-mw", "", "minimum capacity in MW")
	cmd.Flags().String("max-mw", "", "maximum capacity in MW")
}

func init() {
	addFilterFlags(entitiesCmd)
	entitiesCmd.Flags().Bool("json", false, "print entities as JSON")
	rootCmd.AddCommand(entitiesCmd)
}

// formatEntities writes a tabular entity list to out.
func formatEntities(out io.Writer, es []entity.Entity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tNAME\tCLASSIFICATION\tREGION\tCAPACITY_MW\tPROJECTS\tLOCATION")
	_, _ = fmt.Fprintln(w, "---\t----\t--------------\t------\t-----------\t--------\t--------")
	for _, e := range es {
		loc := "-"
		if e.Location.Valid {
			loc = fmt.Sprintf("%.4f,%.4f", e.Location.Lat, e.Location.Lng)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Key(),
			truncate(e.Name, 40),
			truncate(e.Classification, 24),
			truncate(e.Region, 24),
			diff.Format(e.CapacityMW),
			e.ProjectCount,
			loc,
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
