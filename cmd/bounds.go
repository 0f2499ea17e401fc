package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/compare-engine/internal/entity"
)

var boundsCmd = &cobra.Command{
	Use:   "bounds",
	Short: "Print the map viewport that fits the (filtered) entities",
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
		return writeJSON(os.Stdout, entity.ViewportOf(d.Filter(f), cfg.Viewport))
	},
}

func init() {
	addFilterFlags(boundsCmd)
	rootCmd.AddCommand(boundsCmd)
}
