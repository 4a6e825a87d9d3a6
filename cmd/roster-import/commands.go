package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/importer"
	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/internal/repository"
	"github.com/noah-isme/sma-roster-sync/internal/service"
	"github.com/noah-isme/sma-roster-sync/pkg/config"
	"github.com/noah-isme/sma-roster-sync/pkg/database"
	"github.com/noah-isme/sma-roster-sync/pkg/logger"
)

type importOptions struct {
	variant      string
	academicYear string
	dryRun       bool
	migrate      bool
	verbose      bool
	showLog      bool
}

func newRootCmd() *cobra.Command {
	opts := &importOptions{}
	root := &cobra.Command{
		Use:   "roster-import [flags] FILE...",
		Short: "Reconcile student spreadsheets into the roster database",
		Long: `Read one or more .xlsx/.xls workbooks laid out as the selected variant, create the
levels and sections they mention, and insert or update one student per national id.

Rows that repeat a national id already seen in this run are skipped. The run never
deletes records.`,
		Example: `
  # Preview what a roster import would create
  roster-import --variant roster --dry-run tc1.xlsx tc2.xlsx

  # Import dropouts, defaulting the academic year for sheets without one
  roster-import --variant dropout --academic-year 2025/2026 dropouts.xls`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, args)
		},
	}
	flags := root.Flags()
	flags.StringVarP(&opts.variant, "variant", "t", "roster", "spreadsheet layout: "+strings.Join(importer.VariantNames(), ", "))
	flags.StringVarP(&opts.academicYear, "academic-year", "y", "", "academic year used when a sheet does not carry one (e.g. 2025/2026)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "discover levels, sections and row counts without writing")
	flags.BoolVar(&opts.migrate, "migrate", false, "create missing tables before importing")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	flags.BoolVar(&opts.showLog, "log", false, "print the full audit log after the summary")

	root.AddCommand(newVariantsCmd(), newTemplateCmd(), newTokenCmd())
	return root
}

func runImport(ctx context.Context, opts *importOptions, files []string) error {
	variant, err := importer.LookupVariant(opts.variant)
	if err != nil {
		return err
	}
	year := importer.NormalizeAcademicYear(opts.academicYear)
	if year != "" && !importer.ValidAcademicYear(year) {
		return fmt.Errorf("academic year %q must look like 2025/2026", opts.academicYear)
	}

	logr, err := logger.NewCLI(opts.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	sources := make([]importer.Source, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		sources = append(sources, importer.Source{Name: filepath.Base(path), Data: data})
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if opts.migrate {
		if err := database.EnsureSchema(ctx, db, repository.Schema); err != nil {
			return fmt.Errorf("prepare schema: %w", err)
		}
	}

	metrics := service.NewMetricsService()
	coordinator := importer.NewCoordinator(importer.Stores{
		Students: repository.NewStudentRepository(db),
		Levels:   repository.NewLevelRepository(db),
		Sections: repository.NewSectionRepository(db),
		Mobility: repository.NewMobilityRepository(db),
		Health:   repository.NewHealthRepository(db),
	},
		importer.WithLogger(logr),
		importer.WithBatching(cfg.Import.YieldEvery, cfg.Import.ProgressEvery),
		importer.WithObserver(metrics),
	)

	bar := newProgressLine(os.Stderr)
	result := coordinator.Run(ctx, importer.RunRequest{
		Variant:      variant,
		Sources:      sources,
		AcademicYear: year,
		DryRun:       opts.dryRun,
		OnProgress:   bar.update,
	})
	bar.done()

	printSummary(os.Stdout, result, opts.showLog)
	logr.Debug("run finished", zap.String("state", string(result.State)), zap.Uint64("rows_observed", metrics.Snapshot().ImportRows))
	if result.Failed() {
		return fmt.Errorf("import failed")
	}
	return nil
}

func newVariantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List supported spreadsheet layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printVariants(cmd.OutOrStdout())
			return nil
		},
	}
}

func newTemplateCmd() *cobra.Command {
	var (
		out  string
		opts service.TemplateOptions
	)
	cmd := &cobra.Command{
		Use:   "template VARIANT",
		Short: "Write a blank workbook for a layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, data, err := service.NewTemplateService().Render(args[0], opts)
			if err != nil {
				return err
			}
			if out == "" {
				out = name
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (defaults to template_<variant>.xlsx)")
	cmd.Flags().StringVar(&opts.Institution, "institution", "", "pre-filled institution name")
	cmd.Flags().StringVar(&opts.LevelCode, "level", "", "pre-filled level code")
	cmd.Flags().StringVar(&opts.Section, "section", "", "pre-filled section name")
	cmd.Flags().StringVar(&opts.AcademicYear, "academic-year", "", "pre-filled academic year")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		user string
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for upload endpoints using JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			now := time.Now()
			token, err := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}).
				SignToken(&models.JWTClaims{
					UserID:   user,
					Role:     "operator",
					FullName: name,
					RegisteredClaims: jwt.RegisteredClaims{
						Subject:   user,
						IssuedAt:  jwt.NewNumericDate(now),
						ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
					},
				})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "roster-import", "user id recorded on import jobs")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
