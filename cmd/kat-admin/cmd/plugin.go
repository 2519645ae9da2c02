package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/app"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/postgres"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage plugin descriptors",
}

var pluginSyncCmd = &cobra.Command{
	Use:   "sync <dir>",
	Short: "Sync plugin manifests from a directory into the catalog",
	Long: `Reads every .yaml/.yml manifest under the given directory and upserts
the descriptors. A broken manifest is reported and skipped; the rest of
the directory still syncs.`,
	Args: cobra.ExactArgs(1),
	RunE: runPluginSync,
}

var pluginListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered plugins",
	RunE:    runPluginList,
}

func init() {
	pluginListCmd.Flags().String("consumes", "", "Filter by consumed object type")
	pluginListCmd.Flags().Int("page", 1, "Page number")
	pluginListCmd.Flags().Int("per-page", 50, "Items per page")

	pluginCmd.AddCommand(pluginSyncCmd)
	pluginCmd.AddCommand(pluginListCmd)
}

func runPluginSync(cmd *cobra.Command, args []string) error {
	env, cleanup, err := openEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	sync := app.NewPluginSync(postgres.NewPluginRepository(env.db), env.log)
	n, err := sync.SyncDir(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Synced %d plugin(s) from %s\n", n, args[0])
	return nil
}

func runPluginList(cmd *cobra.Command, args []string) error {
	env, cleanup, err := openEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	consumes, _ := cmd.Flags().GetString("consumes")
	page, _ := cmd.Flags().GetInt("page")
	perPage, _ := cmd.Flags().GetInt("per-page")

	repo := postgres.NewPluginRepository(env.db)
	result, err := repo.List(cmd.Context(), plugin.Filter{Consumes: consumes}, pagination.New(page, perPage))
	if err != nil {
		return err
	}

	if len(result.Data) == 0 {
		fmt.Println("No plugins registered")
		return nil
	}

	fmt.Printf("%-30s %-10s %-20s %s\n", "PLUGIN", "SCAN LVL", "CONSUMES", "IMAGE")
	for _, p := range result.Data {
		fmt.Printf("%-30s %-10d %-20s %s\n", p.PluginID, p.ScanLevel, joinOrDash(p.Consumes), p.OCIImage)
	}
	fmt.Printf("\nPage %d of %d (%d total)\n", result.Page, result.TotalPages, result.Total)
	return nil
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += "," + s
	}
	return out
}
