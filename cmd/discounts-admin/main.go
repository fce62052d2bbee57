package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/upstars/corporate-discounts/config"
	"github.com/upstars/corporate-discounts/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"allowlist-list": {
			name:        "allowlist-list",
			description: "List authorized users stored in Postgres",
			run:         runAllowlistList,
		},
		"allowlist-add": {
			name:        "allowlist-add",
			description: "Authorize a user: --email, --name, --role editor|admin",
			run:         runAllowlistAdd,
		},
		"allowlist-remove": {
			name:        "allowlist-remove",
			description: "Revoke a user's access by email",
			run:         runAllowlistRemove,
		},
		"allowlist-import": {
			name:        "allowlist-import",
			description: "Replace the Postgres allow-list with the configuration document's allowedUsers",
			run:         runAllowlistImport,
		},
		"login": {
			name:        "login",
			description: "Sign in and store a session for the other API commands",
			run:         runLogin,
		},
		"whoami": {
			name:        "whoami",
			description: "Show the stored session and verify it with the API",
			run:         runWhoami,
		},
		"load-config": {
			name:        "load-config",
			description: "Print the configuration document served by the API",
			run:         runLoadConfig,
		},
		"save-config": {
			name:        "save-config",
			description: "Upload a configuration document: save-config <file>",
			run:         runSaveConfig,
		},
		"logout": {
			name:        "logout",
			description: "Forget the stored session",
			run:         runLogout,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: discounts-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := cmds[name]
		if err := writef(w, "  %-20s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
