package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/db"
	"github.com/sells-group/resale-estimator/internal/refdata"
)

var refdataCmd = &cobra.Command{
	Use:   "refdata",
	Short: "Manage the reference datasets",
}

var refdataImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy the CSV reference datasets into Postgres",
	Long:  "Reads every dataset under data.dir and replaces the rows in the refdata schema of store.database_url.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := refdata.Migrate(ctx, pool); err != nil {
			return err
		}

		counts, err := refdata.Import(ctx, pool, refdata.NewCSVSource(cfg.Data.Dir))
		if err != nil {
			return eris.Wrap(err, "refdata import")
		}

		var total int64
		for _, n := range counts {
			total += n
		}
		zap.L().Info("reference data imported", zap.Int("datasets", len(counts)), zap.Int64("rows", total))
		return nil
	},
}

var refdataCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every dataset and print row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("check"); err != nil {
			return err
		}

		elite := cfg.Data.EliteTopRows
		if elite == 0 {
			elite = refdata.DefaultEliteTopRows
		}
		refs, err := loadRefs(cmd.Context(), cfg, nil, elite)
		if err != nil {
			return eris.Wrap(err, "refdata check")
		}

		formatCounts(os.Stdout, refs.Counts(), len(refs.Regions()))
		return nil
	},
}

func init() {
	refdataCmd.AddCommand(refdataImportCmd, refdataCheckCmd)
	rootCmd.AddCommand(refdataCmd)
}

// formatCounts writes one row per dataset kind, sorted by name, then the region count.
func formatCounts(out io.Writer, counts map[refdata.Kind]int, regions int) {
	kinds := make([]refdata.Kind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tROWS")
	_, _ = fmt.Fprintln(w, "-------\t----")
	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
	}
	_, _ = fmt.Fprintf(w, "regions\t%d\n", regions)
	_ = w.Flush()
}
