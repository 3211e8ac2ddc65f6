package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"

	"github.com/tuannm99/heapdb/internal"
	"github.com/tuannm99/heapdb/internal/engine"
)

const usage = `usage: heapdb [shell|bench] [flags]

  shell   interactive command shell (default)
  bench   concurrent insert benchmark`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "heapdb:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "shell"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	flags := pflag.NewFlagSet("heapdb "+cmd, pflag.ContinueOnError)
	configPath := flags.String("config", "", "YAML config file")
	flags.String("storage.data_dir", "./data", "data directory")
	flags.String("storage.schema_file", "", "schema file registered at startup")
	flags.Int("buffer_pool.capacity", 50, "buffer pool capacity in pages")
	flags.Duration("buffer_pool.lock_timeout", 0, "max wait for a page lock")
	flags.String("log.level", "info", "debug|info|warn|error")
	flags.String("log.format", "text", "text|json")

	bench := benchOptions{}
	switch cmd {
	case "shell":
	case "bench":
		flags.StringVar(&bench.Table, "table", "bench", "table to insert into")
		flags.IntVar(&bench.Workers, "workers", 8, "concurrent transactions")
		flags.IntVar(&bench.Rows, "rows", 1000, "rows per worker")
		flags.IntVar(&bench.Batch, "batch", 10, "rows per transaction")
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := internal.LoadConfig(*configPath, flags)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	db, err := engine.Open(engine.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("heapdb: close", "err", err)
		}
	}()

	if cfg.Storage.SchemaFile != "" {
		if _, err := db.LoadSchema(cfg.Storage.SchemaFile); err != nil {
			return err
		}
	}

	if cmd == "bench" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		res, err := runBench(ctx, db, bench)
		if err != nil {
			return err
		}
		res.print(os.Stdout)
		return nil
	}
	return runShell(db, cfg.AppName)
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".heapdb_history"
	}
	return filepath.Join(home, ".heapdb_history")
}

func runShell(db *engine.Database, appName string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          appName + "> ",
		HistoryFile:     defaultHistoryPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	sh := newShell(db, rl.Stdout())
	defer sh.abortOpen()

	fmt.Fprintln(rl.Stdout(), `type \help for help`)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF
			return nil
		}

		err = sh.exec(line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
		if sh.inTxn() {
			rl.SetPrompt(appName + "*> ")
		} else {
			rl.SetPrompt(appName + "> ")
		}
	}
}
