package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"tasktrack/internal/config"
	"tasktrack/internal/db"
	"tasktrack/internal/events"
	"tasktrack/internal/logging"
	"tasktrack/internal/migrate"
	"tasktrack/internal/repo"
	"tasktrack/internal/store"
)

// Options select the workspace and the overrides taken from flags or env.
type Options struct {
	Workspace   string
	TasksFile   string
	ArchiveFile string
	NoJournal   bool
	LogLevel    string
	LogOutput   io.Writer
	Now         func() time.Time
}

// Env is everything a command needs: one Store bound to its files, plus
// the optional journal.
type Env struct {
	Workspace string
	Config    *config.Config
	Store     *store.Store
	Repo      *repo.Repo
	Logger    *slog.Logger

	conn *sql.DB
}

// Open resolves config for the workspace, opens the journal when enabled
// and hydrates the Store.
func Open(ctx context.Context, opts Options) (*Env, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if opts.TasksFile != "" {
		cfg.Storage.TasksFile = opts.TasksFile
	}
	if opts.ArchiveFile != "" {
		cfg.Storage.ArchiveFile = opts.ArchiveFile
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := opts.LogOutput
	if out == nil {
		out = io.Discard
	}
	env := &Env{
		Workspace: opts.Workspace,
		Config:    cfg,
		Logger:    logging.New(out, cfg.Log.Level),
	}
	var journal store.Journal
	if cfg.Journal.Enabled && !opts.NoJournal {
		conn, err := db.Open(db.Config{Workspace: opts.Workspace})
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		if err := migrate.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
		w := events.NewWriter(conn)
		journal = w
		env.conn = conn
		env.Repo = &repo.Repo{DB: conn}
		env.Logger = env.Logger.With("session", w.SessionID)
	}
	s, err := store.New(store.Config{
		TasksPath:   config.Resolve(opts.Workspace, cfg.Storage.TasksFile),
		ArchivePath: config.Resolve(opts.Workspace, cfg.Storage.ArchiveFile),
		Journal:     journal,
		Logger:      env.Logger,
		Now:         opts.Now,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Store = s
	return env, nil
}

// ExportPath returns the configured CSV destination.
func (e *Env) ExportPath() string {
	return config.Resolve(e.Workspace, e.Config.Storage.ExportFile)
}

func (e *Env) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}
