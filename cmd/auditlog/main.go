package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mickamy/auditlog"
	"github.com/mickamy/auditlog/internal/config"
	"github.com/mickamy/auditlog/internal/database"
	"github.com/mickamy/auditlog/internal/demo"
	"github.com/mickamy/auditlog/internal/server"
)

var (
	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
	colorFaint  = color.New(color.Faint)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is built once per command invocation.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	db    *database.DB
	h     *auditlog.Handler
	store *auditlog.Store
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	db, err := database.Open(ctx, database.OptionsFrom(cfg))
	if err != nil {
		return nil, err
	}

	redact := auditlog.RedactMap{}
	for _, k := range cfg.RedactKeyList() {
		redact[k] = auditlog.Mask
	}
	h := auditlog.New(auditlog.Config{
		Registry:        auditlog.NewRegistry(auditlog.WithDB(db.Gorm)),
		Redact:          redact,
		AppendReturning: cfg.AppendReturning,
		Placeholder:     db.Placeholder,
		Logger:          logger,
	})
	if err := h.Register(demo.Models()...); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: logger, db: db, h: h, store: auditlog.NewStore(db.Gorm)}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("failed to close database", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "auditlog",
		Short:         "Inspect and serve the audit log",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newServeCmd(),
		newListCmd(),
		newShowCmd(),
		newDemoCmd(),
	)
	return root
}

// withApp runs fn with a fully wired app and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the log table",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			if err := a.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			colorGreen.Fprintf(cmd.OutOrStdout(), "✓ %s is up to date\n", auditlog.TableName)
			return nil
		}),
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only log API",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           server.New(a.h, a.store, a.log).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.log.Info("listening", "addr", a.cfg.HTTPAddr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.log.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		}),
	}
}

func newListCmd() *cobra.Command {
	var (
		f      auditlog.Filter
		action string
		level  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List log entries, newest first",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			var err error
			if action != "" {
				if f.Action, err = auditlog.ParseAction(action); err != nil {
					return err
				}
			}
			if level != "" {
				if f.Level, err = auditlog.ParseLevel(level); err != nil {
					return err
				}
			}
			logs, err := a.store.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, l := range logs {
				fmt.Fprintf(out, "%6d  %s  ", l.ID, auditlog.FormatDateTime(l.CreatedAt))
				levelColor(l.Level).Fprintf(out, "%-8s", l.Level)
				fmt.Fprintf(out, "  %-7s %s", l.Action, l.Message)
				if l.ObjectName != "" {
					colorFaint.Fprintf(out, "  [%s %s]", l.ObjectName, l.ObjectID)
				}
				fmt.Fprintln(out)
			}
			if len(logs) == 0 {
				colorYellow.Fprintln(out, "no entries")
			}
			return nil
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&f.ObjectName, "object", "", "object log name, e.g. blog.post")
	flags.StringVar(&f.ObjectID, "id", "", "object primary key")
	flags.StringVar(&f.Username, "user", "", "acting username")
	flags.StringVar(&action, "action", "", "create, update, delete, view, login, logout or other")
	flags.StringVar(&level, "level", "", "DEBUG, INFO, WARNING, ERROR or CRITICAL")
	flags.IntVar(&f.Limit, "limit", auditlog.DefaultListLimit, "maximum entries")
	flags.IntVar(&f.Offset, "offset", 0, "entries to skip")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one entry and the object rebuilt from it",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			ctx := cmd.Context()
			l, err := a.store.Get(ctx, uint(id))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorCyan.Fprintf(out, "Log #%d\n", l.ID)
			field(out, "created", auditlog.FormatDateTime(l.CreatedAt))
			field(out, "action", string(l.Action))
			field(out, "level", levelColor(l.Level).Sprint(l.Level))
			field(out, "message", l.Message)
			field(out, "function", l.FuncName)
			field(out, "user", fmt.Sprintf("%s (%d)", l.Username, l.UserID))
			field(out, "object", fmt.Sprintf("%s %s", l.ObjectName, l.ObjectID))
			field(out, "extra", string(l.Extra))
			field(out, "request", l.HTTPGeneral)

			obj, err := l.ModelObject(ctx, a.h.Registry())
			if err != nil {
				if errors.Is(err, auditlog.ErrModelNotFound) {
					colorYellow.Fprintf(out, "  %v\n", err)
					return nil
				}
				return err
			}
			if obj == nil {
				return nil
			}
			name, err := l.ObjectModelName(ctx, a.h.Registry())
			if err != nil {
				return err
			}
			field(out, "model", name)
			field(out, "rebuilt", fmt.Sprintf("%+v", obj))
			return nil
		}),
	}
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Create demo tables and write a few entries",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			res, err := demo.Run(cmd.Context(), demo.Env{
				SQL:     a.db.SQL,
				Gorm:    a.db.Gorm,
				Handler: a.h,
				Store:   a.store,
				Log:     a.log,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorGreen.Fprintf(out, "✓ post %d has %d history entries\n", res.Post.ID, len(res.Logs))
			for _, l := range res.Logs {
				fmt.Fprintf(out, "  #%d %-7s %s\n", l.ID, l.Action, l.Message)
			}
			if res.Rebuilt != nil {
				field(out, "first state", fmt.Sprintf("%+v", res.Rebuilt))
			}
			return nil
		}),
	}
}

func field(out io.Writer, name, value string) {
	if value == "" {
		return
	}
	colorFaint.Fprintf(out, "  %-10s", name)
	fmt.Fprintf(out, " %s\n", value)
}

func levelColor(l auditlog.Level) *color.Color {
	switch l {
	case auditlog.LevelCritical, auditlog.LevelError:
		return colorRed
	case auditlog.LevelWarning:
		return colorYellow
	case auditlog.LevelInfo:
		return colorGreen
	default:
		return colorFaint
	}
}
