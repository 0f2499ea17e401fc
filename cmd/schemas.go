package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/compare-engine/internal/entity"
)

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List the known entity schemas and their column synonyms",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := entity.LoadSchemas(cfg.Schema.Path)
		if err != nil {
			return err
		}
		if verbose, _ := cmd.Flags().GetBool("fields"); verbose {
			for _, sc := range reg.List() {
				formatSchemaFields(os.Stdout, sc)
			}
			return nil
		}
		formatSchemas(os.Stdout, reg.List(), cfg.Schema.Type)
		return nil
	},
}

func init() {
	schemasCmd.Flags().Bool("fields", false, "list the synonyms of every attribute")
	rootCmd.AddCommand(schemasCmd)
}

func formatSchemas(out io.Writer, schemas []entity.Schema, active string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TYPE\tLABEL\tATTRIBUTES\tACTIVE")
	_, _ = fmt.Fprintln(w, "----\t-----\t----------\t------")
	for _, sc := range schemas {
		mark := ""
		if sc.Type == active {
			mark = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", sc.Type, sc.Label, len(sc.Fields), mark)
	}
	_ = w.Flush()
}

func formatSchemaFields(out io.Writer, sc entity.Schema) {
	_, _ = fmt.Fprintf(out, "%s (%s)\n", sc.Type, sc.Label)
	attrs := make([]string, 0, len(sc.Fields))
	for a := range sc.Fields {
		attrs = append(attrs, string(a))
	}
	sort.Strings(attrs)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, a := range attrs {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", a, strings.Join(sc.Fields[entity.Attribute(a)], ", "))
	}
	_ = w.Flush()
}
