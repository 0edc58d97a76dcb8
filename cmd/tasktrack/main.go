package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tasktrack/internal/app"
	"tasktrack/internal/config"
	"tasktrack/internal/db"
	"tasktrack/internal/domain"
	"tasktrack/internal/migrate"
	"tasktrack/internal/repo"
	"tasktrack/internal/server"
	"tasktrack/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "tasktrack",
	Short: "Personal task tracker",
	Long: `tasktrack keeps a personal to-do list in a JSON file.
- Tasks have a name, due date (YYYY-MM-DD), priority, category and optional recurrence (daily, weekly, monthly).
- Every change is written to the task file immediately.
- undo reverses the last change made in the same process; use 'tasktrack shell' or 'tasktrack serve' for a long-lived session.
- archive moves completed tasks into a separate archive file.
- The journal (.tasktrack/journal.db) records every change; view it with 'tasktrack log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKTRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("tasks-file", "", "task file (overrides config)")
	rootCmd.PersistentFlags().String("archive-file", "", "archive file (overrides config)")
	rootCmd.PersistentFlags().Bool("no-journal", false, "do not record changes in the journal")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	for _, name := range []string{"workspace", "json", "tasks-file", "archive-file", "no-journal", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(completeAllCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(undoCmd())
	rootCmd.AddCommand(overdueCmd())
	rootCmd.AddCommand(nextCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(shellCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tasktrack.yml in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func addCmd() *cobra.Command {
	var due, priority, category, recurrence string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecurrence(recurrence)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(env *app.Env) error {
				t, err := env.Store.Add(args[0], due, store.AddOptions{Priority: priority, Category: category, Recurrence: rec})
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&priority, "priority", domain.PriorityMedium, "priority (High, Medium, Low)")
	cmd.Flags().StringVar(&category, "category", "General", "category")
	cmd.Flags().StringVar(&recurrence, "recurrence", "none", "recurrence (none, daily, weekly, monthly)")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func listCmd() *cobra.Command {
	var opts store.ListOptions
	var sortBy string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SortBy = store.SortKey(sortBy)
			return withStore(cmd.Context(), func(env *app.Env) error {
				tasks, err := env.Store.List(opts)
				if err != nil {
					return err
				}
				if err := printTasks(tasks); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return nil
				}
				overdue, err := env.Store.Overdue()
				if err != nil {
					return err
				}
				printReminders(os.Stdout, overdue)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort by due_date, priority, name or status")
	cmd.Flags().StringVar(&opts.Category, "category", "", "only tasks in this category")
	cmd.Flags().BoolVar(&opts.PendingOnly, "pending", false, "hide completed tasks")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(env *app.Env) error {
				t, ok := env.Store.Get(id)
				if !ok {
					return fmt.Errorf("task %d not found", id)
				}
				return printTask(t)
			})
		},
	}
}

func updateCmd() *cobra.Command {
	var name, due, priority, category, recurrence string
	var completed bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields; only flags given are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var u store.TaskUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				u.Name = &name
			}
			if flags.Changed("due") {
				u.DueDate = &due
			}
			if flags.Changed("priority") {
				u.Priority = &priority
			}
			if flags.Changed("category") {
				u.Category = &category
			}
			if flags.Changed("completed") {
				u.Completed = &completed
			}
			if flags.Changed("recurrence") {
				rec, err := parseRecurrence(recurrence)
				if err != nil {
					return err
				}
				u.Recurrence = &rec
			}
			return withStore(cmd.Context(), func(env *app.Env) error {
				ok, err := env.Store.Update(id, u)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task %d not found", id)
				}
				t, _ := env.Store.Get(id)
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().BoolVar(&completed, "completed", false, "completion status")
	cmd.Flags().StringVar(&recurrence, "recurrence", "", "recurrence (none, daily, weekly, monthly)")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(env *app.Env) error {
				ok, err := env.Store.Delete(id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task %d not found", id)
				}
				fmt.Printf("Deleted task %d\n", id)
				return nil
			})
		},
	}
}

func completeAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete-all",
		Short: "Mark every task completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(env *app.Env) error {
				if err := env.Store.MarkAllCompleted(); err != nil {
					return err
				}
				fmt.Println("All tasks marked as completed.")
				return nil
			})
		},
	}
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move completed tasks to the archive file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(env *app.Env) error {
				archived, err := env.Store.ArchiveCompleted()
				if err != nil {
					return err
				}
				fmt.Printf("Archived %d task(s) to %s\n", len(archived), env.Store.ArchivePath())
				return nil
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(env *app.Env) error {
				path := output
				if path == "" {
					path = env.ExportPath()
				}
				if err := env.Store.ExportCSV(path); err != nil {
					return err
				}
				fmt.Printf("Exported %d task(s) to %s\n", env.Store.Len(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV path (defaults to storage.export_file)")
	return cmd
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <keyword>",
		Short: "Find tasks whose name contains keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(env *app.Env) error {
				found := env.Store.Search(args[0])
				if len(found) == 0 && !viper.GetBool("json") {
					fmt.Println("No tasks match the keyword.")
					return nil
				}
				return printTasks(found)
			})
		},
	}
}

func undoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Undo the last change made in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(env *app.Env) error {
				ok, err := env.Store.UndoLast()
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("No actions to undo.")
					return nil
				}
				fmt.Println("Last action undone.")
				return nil
			})
		},
	}
}

func overdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open tasks past their due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(env *app.Env) error {
				tasks, err := env.Store.Overdue()
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
}

func nextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <id>",
		Short: "Show the next due date of a recurring task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(env *app.Env) error {
				t, ok := env.Store.Get(id)
				if !ok {
					return fmt.Errorf("task %d not found", id)
				}
				next, recurring, err := t.NextDueDate()
				if err != nil {
					return err
				}
				if !recurring {
					fmt.Printf("Task %d does not recur\n", id)
					return nil
				}
				fmt.Println(next.Format(domain.DateLayout))
				return nil
			})
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a task file and report every problem",
		Long:  "check reads the file directly, so it works on files the store refuses to load. Defaults to storage.tasks_file.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := tasksFilePath(args)
			if err != nil {
				return err
			}
			problems, err := store.CheckFile(path)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				if err := printJSON(problems); err != nil {
					return err
				}
			} else {
				for _, p := range problems {
					fmt.Println(p)
				}
			}
			if len(problems) > 0 {
				return fmt.Errorf("%s: %d problem(s)", path, len(problems))
			}
			if !viper.GetBool("json") {
				fmt.Printf("%s ok\n", path)
			}
			return nil
		},
	}
}

func tasksFilePath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	ws := viper.GetString("workspace")
	if f := viper.GetString("tasks-file"); f != "" {
		return config.Resolve(ws, f), nil
	}
	c, err := config.LoadOptional(ws)
	if err != nil {
		return "", err
	}
	return config.Resolve(ws, c.Storage.TasksFile), nil
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Change journal",
		Long:  "Every change made through tasktrack, newest first.",
	}
	log.AddCommand(logTailCmd())
	log.AddCommand(logShowCmd())
	log.AddCommand(logStatsCmd())
	return log
}

func logShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show one journal event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			return withJournal(cmd.Context(), func(env *app.Env) error {
				evt, err := env.Repo.GetEvent(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(evt)
			})
		},
	}
}

func logStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the journal by event type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), func(env *app.Env) error {
				version, err := migrate.Version(cmd.Context(), env.Repo.DB)
				if err != nil {
					return err
				}
				counts, err := env.Repo.CountByType(cmd.Context())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"path":           db.Path(env.Workspace),
						"schema_version": version,
						"counts":         counts,
					})
				}
				fmt.Printf("journal %s (schema v%d)\n", db.Path(env.Workspace), version)
				types := make([]string, 0, len(counts))
				for t := range counts {
					types = append(types, t)
				}
				sort.Strings(types)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Type", "Events"})
				for _, t := range types {
					tw.AppendRow(table.Row{t, counts[t]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func logTailCmd() *cobra.Command {
	var n, taskID int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail journal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), func(env *app.Env) error {
				f := repo.EventFilter{Type: evtType}
				if taskID > 0 {
					f.TaskID = &taskID
				}
				evts, err := env.Repo.LatestEvents(cmd.Context(), n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Task", "Payload"})
				for _, e := range evts {
					task := ""
					if e.TaskID != nil {
						task = strconv.Itoa(*e.TaskID)
					}
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, task, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().IntVar(&taskID, "task", 0, "task id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			out, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate tasktrack.yml, or the given config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if len(args) == 1 {
				_, err = config.FromFile(args[0])
			} else {
				_, err = config.Load(viper.GetString("workspace"))
			}
			if err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(env *app.Env) error {
				if !cmd.Flags().Changed("addr") && env.Config.Server.Addr != "" {
					addr = env.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && env.Config.Server.BasePath != "" {
					basePath = env.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Store:      env.Store,
					Repo:       env.Repo,
					ExportPath: env.ExportPath(),
					BasePath:   basePath,
					Logger:     env.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-cmd.Context().Done()
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(ctx)
				}()
				fmt.Printf("Serving tasktrack API on http://%s%s (OpenAPI at /openapi.json, docs at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive menu; undo works across actions in one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(env *app.Env) error {
				sh := &shell{in: os.Stdin, out: os.Stdout, store: env.Store, exportPath: env.ExportPath()}
				return sh.run()
			})
		},
	}
}

// --- helpers ---

func withStore(ctx context.Context, fn func(*app.Env) error) error {
	env, err := app.Open(ctx, app.Options{
		Workspace:   viper.GetString("workspace"),
		TasksFile:   viper.GetString("tasks-file"),
		ArchiveFile: viper.GetString("archive-file"),
		NoJournal:   viper.GetBool("no-journal"),
		LogLevel:    viper.GetString("log-level"),
		LogOutput:   os.Stderr,
	})
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env)
}

func withJournal(ctx context.Context, fn func(*app.Env) error) error {
	return withStore(ctx, func(env *app.Env) error {
		if env.Repo == nil {
			return errors.New("journal is disabled")
		}
		return fn(env)
	})
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func parseRecurrence(s string) (domain.Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return domain.RecurrenceNone, nil
	case "daily":
		return domain.RecurrenceDaily, nil
	case "weekly":
		return domain.RecurrenceWeekly, nil
	case "monthly":
		return domain.RecurrenceMonthly, nil
	default:
		return "", fmt.Errorf("invalid recurrence %q (none, daily, weekly, monthly)", s)
	}
}

func printTask(t domain.Task) error {
	return printTasks([]domain.Task{t})
}

func printTasks(tasks []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	renderTasks(os.Stdout, tasks)
	return nil
}

func renderTasks(w io.Writer, tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Due", "Priority", "Category", "Status", "Recurrence"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Name, t.DueDate, t.Priority, t.Category, statusText(t), recurrenceText(t.Recurrence)})
	}
	tw.Render()
}

func printReminders(w io.Writer, overdue []domain.Task) {
	if len(overdue) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Reminder: Overdue Tasks ---")
	for _, t := range overdue {
		fmt.Fprintf(w, "%d: %s (Due: %s)\n", t.ID, t.Name, t.DueDate)
	}
	fmt.Fprintln(w, "-------------------------------")
}

func statusText(t domain.Task) string {
	if t.Completed {
		return "Completed"
	}
	return "Pending"
}

func recurrenceText(r domain.Recurrence) string {
	if r == domain.RecurrenceNone {
		return "none"
	}
	return string(r)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
