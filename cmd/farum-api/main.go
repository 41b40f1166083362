package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/farum-reflect/internal/adapters/http"
	"github.com/PabloGalante/farum-reflect/internal/adapters/identity"
	"github.com/PabloGalante/farum-reflect/internal/app/reflection"
	"github.com/PabloGalante/farum-reflect/internal/app/submission"
	"github.com/PabloGalante/farum-reflect/internal/app/template"
	"github.com/PabloGalante/farum-reflect/internal/config"
	"github.com/PabloGalante/farum-reflect/internal/domain"
	"github.com/PabloGalante/farum-reflect/internal/observability"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is what every subcommand needs once config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	templates  *template.Registry
	openStores func(context.Context, *config.Config) (*backends, error)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(openBackends)
}

func newRootCmdWith(open func(context.Context, *config.Config) (*backends, error)) *cobra.Command {
	a := &app{openStores: open}

	root := &cobra.Command{
		Use:   "farum-api",
		Short: "Guided reflection sessions for interpreters",
		Long: `farum-api serves guided, multi-step reflection sessions over HTTP.
Drafts are saved after every change and completed reflections are written
exactly once.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("FARUM_CONFIG"), "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve(cmd.Context())
			},
		},
		newTemplatesCmd(a),
		newSummaryCmd(a),
		newRecordCmd(a),
		newDraftsCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	observability.SetLevel(cfg.LogLevel)

	reg, err := template.Load(cfg.TemplatesDir)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	a.cfg = cfg
	a.templates = reg
	return nil
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.WithFields("version", version)

	stores, err := a.openStores(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	ctrl := submission.NewController(
		a.templates,
		stores.records,
		stores.drafts,
		identity.ContextProvider{Fallback: domain.UserID(a.cfg.DefaultUser)},
		submission.WithInsertTimeout(a.cfg.InsertTimeout),
	)
	engine := reflection.NewEngine(a.templates, stores.drafts, ctrl)
	srv := httpadapter.NewServer(engine, a.templates)

	log.Info("farum api configured",
		"mode", a.cfg.Mode,
		"draft_backend", a.cfg.DraftBackend,
		"record_backend", a.cfg.RecordBackend,
		"templates", len(a.templates.ListTemplates()),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(a.cfg.Addr()) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
