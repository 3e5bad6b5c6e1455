package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/erp/ledgercore/internal/infrastructure/config"
	"github.com/erp/ledgercore/internal/infrastructure/logger"
	"github.com/erp/ledgercore/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	var (
		dir      string
		logLevel string
	)
	flag.StringVar(&dir, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.Log.Level = logLevel
	cfg.Log.Format = "console"
	log, err := logger.New(cfg.Log, "ledgercore-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if dir, err = filepath.Abs(dir); err != nil {
		log.Fatal("Failed to resolve migrations path", zap.Error(err))
	}

	if err := run(args, dir, cfg, log); err != nil {
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func run(args []string, dir string, cfg *config.Config, log *zap.Logger) error {
	switch args[0] {
	case "create":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate create <name> [description]")
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		f, err := migration.Create(dir, args[1], description, time.Now())
		if err != nil {
			return err
		}
		log.Info("Migration created", zap.String("up", f.UpPath), zap.String("down", f.DownPath))
		return nil

	case "list":
		files, err := migration.Files(dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f.Base())
		}
		return nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, dir, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	switch args[0] {
	case "up":
		return m.Up(ctx)
	case "down":
		if len(args) > 1 && args[1] == "--all" {
			return m.Down(ctx)
		}
		return m.Steps(ctx, -1)
	case "steps":
		n, err := intArg(args, "steps <n>")
		if err != nil {
			return err
		}
		return m.Steps(ctx, n)
	case "goto":
		n, err := intArg(args, "goto <version>")
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("version must not be negative")
		}
		return m.GoTo(ctx, uint(n))
	case "force":
		n, err := intArg(args, "force <version>")
		if err != nil {
			return err
		}
		return m.Force(n)
	case "version", "status":
		st, err := m.Status()
		if err != nil {
			return err
		}
		fmt.Printf("version: %d dirty: %t pending: %d\n", st.Version, st.Dirty, len(st.Pending))
		for _, f := range st.Pending {
			fmt.Printf("  pending %s\n", f.Base())
		}
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func intArg(args []string, usage string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: migrate %s", usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[1], err)
	}
	return n, nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: migrate [flags] <command> [args]

Commands:
  up                      Apply all pending migrations
  down [--all]            Roll back one migration, or all of them
  steps <n>               Apply n migrations (negative rolls back)
  goto <version>          Migrate to a specific version
  force <version>         Mark a version as applied (clears dirty state)
  status                  Show the applied version and pending migrations
  create <name> [desc]    Create a new migration pair
  list                    List migration files

Flags:
`)
	flag.PrintDefaults()
}
