package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/postgres"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/schedule"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring scan schedules",
}

var scheduleListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List schedules",
	RunE:    runScheduleList,
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleSetEnabled(true),
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a schedule",
	Long: `Disabling stops future evaluation passes from creating tasks for this
schedule. Tasks already dispatched keep running.`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleSetEnabled(false),
}

func init() {
	scheduleListCmd.Flags().String("enabled", "", "Filter by enabled flag (true/false)")
	scheduleListCmd.Flags().Int("page", 1, "Page number")
	scheduleListCmd.Flags().Int("per-page", 50, "Items per page")

	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleEnableCmd)
	scheduleCmd.AddCommand(scheduleDisableCmd)
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	env, cleanup, err := openEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	filter := schedule.Filter{}
	switch v, _ := cmd.Flags().GetString("enabled"); v {
	case "":
	case "true":
		enabled := true
		filter.Enabled = &enabled
	case "false":
		enabled := false
		filter.Enabled = &enabled
	default:
		return fmt.Errorf("invalid --enabled value %q, want true or false", v)
	}
	page, _ := cmd.Flags().GetInt("page")
	perPage, _ := cmd.Flags().GetInt("per-page")

	repo := postgres.NewScheduleRepository(env.db)
	result, err := repo.List(cmd.Context(), filter, pagination.New(page, perPage))
	if err != nil {
		return err
	}

	if len(result.Data) == 0 {
		fmt.Println("No schedules found")
		return nil
	}

	fmt.Printf("%-36s %-30s %-16s %-8s %s\n", "ID", "PLUGIN", "RECURRENCE", "ENABLED", "LAST EVALUATED")
	for _, s := range result.Data {
		last := "-"
		if s.LastEvaluatedAt != nil {
			last = s.LastEvaluatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-36s %-30s %-16s %-8t %s\n", s.ID, s.PluginID, s.Recurrence, s.Enabled, last)
	}
	fmt.Printf("\nPage %d of %d (%d total)\n", result.Page, result.TotalPages, result.Total)
	return nil
}

func runScheduleSetEnabled(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := shared.IDFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid schedule id %q", args[0])
		}

		env, cleanup, err := openEnv()
		if err != nil {
			return err
		}
		defer cleanup()

		repo := postgres.NewScheduleRepository(env.db)
		if err := repo.SetEnabled(cmd.Context(), id, enabled); err != nil {
			return err
		}

		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Printf("Schedule %s %s\n", id, state)
		return nil
	}
}
