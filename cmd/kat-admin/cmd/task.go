package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/app"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/jobs"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/postgres"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/redis"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and resolve tasks",
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	RunE:    runTaskList,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending or running task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

var taskRequeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Put a failed task back in the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRequeue,
}

func init() {
	taskListCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	taskListCmd.Flags().String("plugin", "", "Filter by plugin id")
	taskListCmd.Flags().Int("page", 1, "Page number")
	taskListCmd.Flags().Int("per-page", 50, "Items per page")

	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskRequeueCmd)
}

// openTaskService wires a TaskService against the live stores. Cancel
// notifications go over Redis so a worker mid-run sees them.
func openTaskService(env *adminEnv) (*app.TaskService, func(), error) {
	redisClient, err := redis.New(&env.cfg.Redis, env.log)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}

	jobClient := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     env.cfg.Redis.Addr(),
		RedisPassword: env.cfg.Redis.Password,
		RedisDB:       env.cfg.Redis.DB,
	}, env.log)

	svc := app.NewTaskService(
		postgres.NewTaskRepository(env.db),
		postgres.NewPluginRepository(env.db),
		jobClient,
		redis.NewCancelNotifier(redisClient, env.log),
		env.log,
	)
	cleanup := func() {
		_ = jobClient.Close()
		_ = redisClient.Close()
	}
	return svc, cleanup, nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	env, cleanup, err := openEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	filter := task.Filter{}
	if s, _ := cmd.Flags().GetString("status"); s != "" {
		status := task.Status(s)
		if !status.IsValid() {
			return fmt.Errorf("unknown status %q", s)
		}
		filter.Status = &status
	}
	filter.PluginID, _ = cmd.Flags().GetString("plugin")
	page, _ := cmd.Flags().GetInt("page")
	perPage, _ := cmd.Flags().GetInt("per-page")

	repo := postgres.NewTaskRepository(env.db)
	result, err := repo.List(cmd.Context(), filter, pagination.New(page, perPage))
	if err != nil {
		return err
	}

	if len(result.Data) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	fmt.Printf("%-36s %-30s %-12s %-8s %s\n", "ID", "PLUGIN", "STATUS", "ATTEMPTS", "CREATED")
	for _, t := range result.Data {
		fmt.Printf("%-36s %-30s %-12s %-8d %s\n",
			t.ID, t.PluginID, t.Status, len(t.Attempts), t.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("\nPage %d of %d (%d total)\n", result.Page, result.TotalPages, result.Total)
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	id, err := shared.IDFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid task id %q", args[0])
	}

	env, cleanup, err := openEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	svc, closeSvc, err := openTaskService(env)
	if err != nil {
		return err
	}
	defer closeSvc()

	if err := svc.Cancel(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Task %s cancelled\n", id)
	return nil
}

func runTaskRequeue(cmd *cobra.Command, args []string) error {
	id, err := shared.IDFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid task id %q", args[0])
	}

	env, cleanup, err := openEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	svc, closeSvc, err := openTaskService(env)
	if err != nil {
		return err
	}
	defer closeSvc()

	if err := svc.Requeue(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Task %s requeued\n", id)
	return nil
}
