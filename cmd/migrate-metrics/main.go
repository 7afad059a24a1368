// migrate-metrics moves legacy entities/{e}/useCases/{uc}/metrics/{period} rows into the
// category collections (generalInfo, technicalMetrics, ...) keyed by upload timestamp.
// Migrated legacy rows are deleted together with their history; rows without metric
// values are left in place and reported as skipped.
//
// Usage (from backend directory):
//
//	go run ./cmd/migrate-metrics --dry-run
//	go run ./cmd/migrate-metrics --entity bbva
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"bitbucket.org/avalia/dashboard_backend/config"
	"bitbucket.org/avalia/dashboard_backend/models"
	"github.com/spf13/cobra"
)

var (
	dryRun   bool
	entityID string
)

var rootCmd = &cobra.Command{
	Use:           "migrate-metrics",
	Short:         "Move legacy metrics rows into the category-partitioned schema",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMigrate,
}

func init() {
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would move without writing")
	rootCmd.Flags().StringVar(&entityID, "entity", "", "only migrate the use cases of this entity")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	store, err := config.OpenDocumentStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return migrate(cmd.Context(), models.NewServiceFromEnv(store), entityID, dryRun, cmd.OutOrStdout())
}

func migrate(ctx context.Context, svc *models.Service, entityID string, dryRun bool, out io.Writer) error {
	var results []*models.MigrationResult
	if entityID == "" {
		all, err := svc.MigrateAllLegacyMetrics(ctx, dryRun)
		if err != nil {
			return err
		}
		results = all
	} else {
		useCases, err := svc.ListUseCases(ctx, entityID)
		if err != nil {
			return err
		}
		for _, uc := range useCases {
			res, err := svc.MigrateLegacyMetrics(ctx, uc.EntityID, uc.ID, dryRun)
			if err != nil {
				return err
			}
			if len(res.Migrated) > 0 || res.Skipped > 0 {
				results = append(results, res)
			}
		}
	}
	printResults(out, results, dryRun)
	return nil
}

func printResults(out io.Writer, results []*models.MigrationResult, dryRun bool) {
	if len(results) == 0 {
		fmt.Fprintln(out, "no legacy metrics found")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tUSE CASE\tCATEGORY\tROWS")
	for _, res := range results {
		categories := make([]string, 0, len(res.Migrated))
		for category := range res.Migrated {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		for _, category := range categories {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", res.EntityID, res.UseCaseID, category, res.Migrated[category])
		}
		if res.Skipped > 0 {
			fmt.Fprintf(w, "%s\t%s\t(skipped)\t%d\n", res.EntityID, res.UseCaseID, res.Skipped)
		}
	}
	_ = w.Flush()
	if dryRun {
		fmt.Fprintln(out, "dry run: nothing was written")
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		config.LogError(config.GetLogger(), "migrate-metrics", "main", "execute", nil, err)
		os.Exit(1)
	}
}
