package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/compare-engine/internal/entity"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Resolve a name (as it would appear in a URL) to one entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		d, err := loadDirectory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		e, status := d.Lookup(args[0])
		if status != entity.StatusFound {
			return eris.Errorf("lookup %q: %s", args[0], status)
		}
		return writeJSON(os.Stdout, e)
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
