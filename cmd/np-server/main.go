package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nptracker/nptracker/internal/config"
	"github.com/nptracker/nptracker/internal/domain/cadence"
	"github.com/nptracker/nptracker/internal/domain/patient"
	"github.com/nptracker/nptracker/internal/domain/tasktype"
	"github.com/nptracker/nptracker/internal/domain/transfer"
	"github.com/nptracker/nptracker/internal/platform/db"
	"github.com/nptracker/nptracker/migrations"
	"github.com/nptracker/nptracker/pkg/civil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "np-server",
		Short:        "Nurse practitioner task reminder tracker",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(dueCmd())
	rootCmd.AddCommand(nextStageCmd())
	rootCmd.AddCommand(importCmd())
	return rootCmd
}

// newLogger writes JSON to stdout, or a console format in development.
func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// resolveSigningKey returns the configured session signing key, or a random
// 32-byte key when none is set. The second return value is true when a
// random key was generated; tokens then do not survive a restart.
func resolveSigningKey(configured string) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random session signing key: %w", err)
	}
	return key, true, nil
}

// migrationsFS reads migrations from dir when set, else from the binary.
func migrationsFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(cmd.Context(), migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationsFS(cfg.MigrationsDir)).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(cfg.MigrationsDir)).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or update task types from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			types, err := tasktype.LoadSeedFile(file)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env, cfg.LogLevel)
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := tasktype.NewRepoPG(pool)
			registry, err := tasktype.NewRegistry(repo, registryConfig(cfg), nil)
			if err != nil {
				return err
			}
			res, err := tasktype.NewService(repo, registry, logger).Seed(cmd.Context(), types)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded task types: %d created, %d updated.\n", res.Created, res.Updated)
			return nil
		},
	}
	cmd.Flags().String("file", "configs/task_types.yaml", "Path to the task type seed file")
	return cmd
}

func dueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Compute the due date for a start date and interval label",
		RunE: func(cmd *cobra.Command, args []string) error {
			startFlag, _ := cmd.Flags().GetString("start")
			label, _ := cmd.Flags().GetString("interval")

			start := civil.Today()
			if startFlag != "" {
				var err error
				if start, err = civil.Parse(startFlag); err != nil {
					return err
				}
			}

			out := cadence.Resolve(start.Time, label)
			fmt.Fprintln(cmd.OutOrStdout(), civil.Of(out.Due))
			if !out.Parsed {
				fmt.Fprintf(cmd.ErrOrStderr(), "interval %q not understood; due date is the start date\n", label)
			}
			return nil
		},
	}
	cmd.Flags().String("start", "", "Start date, YYYY-MM-DD (default today)")
	cmd.Flags().String("interval", "", "Interval label, e.g. \"3 months\"")
	_ = cmd.MarkFlagRequired("interval")
	return cmd
}

func nextStageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next-stage",
		Short: "Show the interval that follows a stage of a task type",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, _ := cmd.Flags().GetString("task")
			label, _ := cmd.Flags().GetString("interval")
			file, _ := cmd.Flags().GetString("file")

			var reg cadence.Registry
			if file != "" {
				types, err := tasktype.LoadSeedFile(file)
				if err != nil {
					return err
				}
				static := make(cadence.StaticRegistry, len(types))
				for _, t := range types {
					static[t.Name] = t.Stages
				}
				reg = static
			} else {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				pool, err := openPool(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer pool.Close()
				repo := tasktype.NewRepoPG(pool)
				registry, err := tasktype.NewRegistry(repo, registryConfig(cfg), nil)
				if err != nil {
					return err
				}
				reg = tasktype.NewService(repo, registry, newLogger(cfg.Env, cfg.LogLevel))
			}

			next, ok := cadence.NextStage(cmd.Context(), reg, task, label)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no next stage")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), next)
			return nil
		},
	}
	cmd.Flags().String("task", "", "Task type name (exact)")
	cmd.Flags().String("interval", "", "Current interval label")
	cmd.Flags().String("file", "", "Read task types from a seed file instead of the database")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "patients FILE.xlsx",
		Short: "Import patients from a workbook with name, nursing_home and dob columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := transfer.ReadPatients(f)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := patient.NewService(patient.NewRepoPG(pool), newLogger(cfg.Env, cfg.LogLevel))
			res, err := svc.Import(cmd.Context(), rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d patient(s); skipped %d duplicate(s) and %d incomplete row(s).\n",
				res.Added, res.Skipped, res.Blank)
			return nil
		},
	})
	return cmd
}
