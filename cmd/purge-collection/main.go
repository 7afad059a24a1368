// purge-collection deletes a collection with every nested sub-collection and history
// document under it, using the backend selected by STORE_BACKEND.
//
// Usage (from backend directory):
//
//	STORE_BACKEND=mysql DB_USER=... go run ./cmd/purge-collection --path entities/bbva/useCases --batch 100
//
// Pass --yes to skip the confirmation prompt.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"bitbucket.org/avalia/dashboard_backend/config"
	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/models"
	"github.com/spf13/cobra"
)

var (
	collectionPath string
	batchSize      int
	assumeYes      bool
)

var rootCmd = &cobra.Command{
	Use:   "purge-collection",
	Short: "Recursively delete a document store collection",
	Long: "Delete every document of a collection, draining each document's sub-collections " +
		"(history included) first. Running it again on an empty collection is a no-op.",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPurge,
}

func init() {
	rootCmd.Flags().StringVar(&collectionPath, "path", "", "collection path, e.g. entities/bbva/useCases")
	rootCmd.Flags().IntVar(&batchSize, "batch", config.DeleteBatchSize(), "documents loaded per query")
	rootCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
	_ = rootCmd.MarkFlagRequired("path")
}

func runPurge(cmd *cobra.Command, _ []string) error {
	if err := docstore.ValidateCollectionPath(collectionPath); err != nil {
		return fmt.Errorf("--path %q: %w", collectionPath, err)
	}
	if !assumeYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), collectionPath) {
		fmt.Fprintln(cmd.OutOrStdout(), "aborted")
		return nil
	}

	store, err := config.OpenDocumentStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return purge(cmd.Context(), models.NewServiceFromEnv(store), collectionPath, batchSize, cmd.OutOrStdout())
}

func purge(ctx context.Context, svc *models.Service, path string, batch int, out io.Writer) error {
	if err := svc.DeleteCollectionRecursive(ctx, path, batch); err != nil {
		return fmt.Errorf("purge %s: %w", path, err)
	}
	fmt.Fprintf(out, "purged %s\n", path)
	return nil
}

func confirm(in io.Reader, out io.Writer, path string) bool {
	fmt.Fprintf(out, "Delete %s and everything under it? [y/N] ", path)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		config.LogError(config.GetLogger(), "purge-collection", "main", "execute", nil, err)
		os.Exit(1)
	}
}
