package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	redisadapter "github.com/upstars/corporate-discounts/internal/adapters/redis"
	"github.com/upstars/corporate-discounts/internal/bootstrap"
	"github.com/upstars/corporate-discounts/internal/data"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultAllowlistTimeout = 30 * time.Second
)

type migrateOptions struct {
	Timeout time.Duration
}

type addOptions struct {
	Email   string
	Name    string
	Role    domainauth.Role
	AddedBy string
}

type removeOptions struct {
	Email       string
	AllowRemote bool
}

type importOptions struct {
	File        string
	DryRun      bool
	AllowRemote bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.InfoContext(ctx, "running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return migrateErr
		}
		cmdCtx.Logger.InfoContext(ctx, "migrations completed successfully")
		return nil
	})
}

func runAllowlistList(cmdCtx *commandContext, _ []string) error {
	return withDatabase(cmdCtx, defaultAllowlistTimeout, func(ctx context.Context, db *sql.DB) error {
		users, err := data.NewAuthorizedUserRepo(db).ListAuthorizedUsers(ctx)
		if err != nil {
			return err
		}
		return printUsers(cmdCtx.Out, users)
	})
}

func runAllowlistAdd(cmdCtx *commandContext, args []string) error {
	opts, err := parseAddFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultAllowlistTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewAuthorizedUserRepo(db)
		u, err := repo.Create(ctx, domainauth.AuthorizedUser{
			Email:   opts.Email,
			Name:    opts.Name,
			Role:    opts.Role,
			AddedBy: opts.AddedBy,
		})
		if err != nil {
			return err
		}
		invalidateAllowlistCache(ctx, cmdCtx, repo)
		return writef(cmdCtx.Out, "authorized %s as %s\n", u.Email, u.Role)
	})
}

func runAllowlistRemove(cmdCtx *commandContext, args []string) error {
	opts, err := parseRemoveFlags(args)
	if err != nil {
		return err
	}
	if _, err := guardRemoteHost(cmdCtx, opts.AllowRemote, "revoke access for "+opts.Email); err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultAllowlistTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewAuthorizedUserRepo(db)
		if err := repo.Delete(ctx, opts.Email); err != nil {
			return err
		}
		invalidateAllowlistCache(ctx, cmdCtx, repo)
		return writef(cmdCtx.Out, "revoked %s\n", domainauth.NormalizeEmail(opts.Email))
	})
}

func runAllowlistImport(cmdCtx *commandContext, args []string) error {
	opts, err := parseImportFlags(args)
	if err != nil {
		return err
	}

	users, err := readImportSource(cmdCtx, opts)
	if err != nil {
		return err
	}
	if err := domainauth.ValidateAllowlist(users); err != nil {
		return fmt.Errorf("invalid allow-list: %w", err)
	}
	if opts.DryRun {
		if err := writef(cmdCtx.Out, "dry run: would import %d users\n", len(users)); err != nil {
			return err
		}
		return printUsers(cmdCtx.Out, users)
	}
	if _, err := guardRemoteHost(cmdCtx, opts.AllowRemote, fmt.Sprintf("replace the allow-list with %d users", len(users))); err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultAllowlistTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewAuthorizedUserRepo(db)
		if err := repo.ReplaceAll(ctx, users); err != nil {
			return err
		}
		invalidateAllowlistCache(ctx, cmdCtx, repo)
		return writef(cmdCtx.Out, "imported %d users\n", len(users))
	})
}

// readImportSource reads the allow-list from --file, or from the configured
// document store when no file is given.
func readImportSource(cmdCtx *commandContext, opts importOptions) ([]domainauth.AuthorizedUser, error) {
	if opts.File != "" {
		body, err := os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", opts.File, err)
		}
		return domainauth.AllowlistFromDocument(body)
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultAllowlistTimeout)
	defer cancel()
	store, err := bootstrap.BuildDocumentStore(ctx, cmdCtx.Config.Store, cmdCtx.Logger)
	if err != nil {
		return nil, err
	}
	return data.NewDocumentAllowlist(store, cmdCtx.Config.Store.ConfigKey).ListAuthorizedUsers(ctx)
}

// invalidateAllowlistCache drops the server's cached allow-list so the change
// applies to the next login. Failures are logged; the cache expires on its own.
func invalidateAllowlistCache(ctx context.Context, cmdCtx *commandContext, repo *data.AuthorizedUserRepo) {
	if cmdCtx.Config.Auth.AllowlistCacheTTL <= 0 {
		return
	}
	client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		cmdCtx.Logger.WarnContext(ctx, "allow-list cache not invalidated", "error", err)
		return
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.WarnContext(ctx, "redis close failed", "error", cerr)
		}
	}()

	cache, err := redisadapter.NewAllowlistCache(redisadapter.AllowlistCacheOptions{
		Client: client,
		Source: repo,
		TTL:    cmdCtx.Config.Auth.AllowlistCacheTTL,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		cmdCtx.Logger.WarnContext(ctx, "allow-list cache not invalidated", "error", err)
		return
	}
	if err := cache.Invalidate(ctx); err != nil {
		cmdCtx.Logger.WarnContext(ctx, "allow-list cache not invalidated", "error", err)
	}
}

func printUsers(w io.Writer, users []domainauth.AuthorizedUser) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "EMAIL\tNAME\tROLE\tADDED BY\tADDED AT\n"); err != nil {
		return err
	}
	for _, u := range users {
		added := "-"
		if !u.AddedAt.IsZero() {
			added = u.AddedAt.UTC().Format(time.RFC3339)
		}
		by := u.AddedBy
		if by == "" {
			by = "-"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n", u.Email, u.Name, u.Role, by, added); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseAddFlags(args []string) (addOptions, error) {
	fs := flag.NewFlagSet("allowlist-add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts addOptions
	var role string
	fs.StringVar(&opts.Email, "email", "", "Email address to authorize (required)")
	fs.StringVar(&opts.Name, "name", "", "Display name issued in session tokens")
	fs.StringVar(&role, "role", string(domainauth.RoleEditor), "Role: editor or admin")
	fs.StringVar(&opts.AddedBy, "added-by", os.Getenv("USER"), "Recorded as the author of the entry")

	if err := fs.Parse(args); err != nil {
		return addOptions{}, err
	}
	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return addOptions{}, errors.New("--email is required")
	}
	r, ok := domainauth.ParseRole(role)
	if !ok {
		return addOptions{}, fmt.Errorf("--role must be editor or admin, got %q", role)
	}
	opts.Role = r
	return opts, nil
}

func parseRemoveFlags(args []string) (removeOptions, error) {
	fs := flag.NewFlagSet("allowlist-remove", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts removeOptions
	fs.StringVar(&opts.Email, "email", "", "Email address to revoke")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Allow running against a non-local database host")

	if err := fs.Parse(args); err != nil {
		return removeOptions{}, err
	}
	if opts.Email == "" && fs.NArg() == 1 {
		opts.Email = fs.Arg(0)
	}
	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return removeOptions{}, errors.New("an email is required")
	}
	return opts, nil
}

func parseImportFlags(args []string) (importOptions, error) {
	fs := flag.NewFlagSet("allowlist-import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts importOptions
	fs.StringVar(&opts.File, "file", "", "Configuration document to import from (defaults to the configured store)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print the users that would be imported without writing")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Allow running against a non-local database host")

	if err := fs.Parse(args); err != nil {
		return importOptions{}, err
	}
	return opts, nil
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func guardRemoteHost(cmdCtx *commandContext, allow bool, action string) (bool, error) {
	host := cmdCtx.Config.Postgres.Host
	if !isLikelyRemoteHost(host) {
		return false, nil
	}
	if !allow {
		return true, fmt.Errorf(
			"refusing to run against potentially remote database host %q; re-run with --allow-remote if this is intentional",
			host,
		)
	}
	return true, requireRemoteHostConfirmation(os.Stdin, os.Stderr, action, host)
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return false
	}
	if h == "localhost" || h == "127.0.0.1" || h == "::1" {
		return false
	}
	if strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

func requireRemoteHostConfirmation(in io.Reader, out io.Writer, action, host string) error {
	if err := writef(
		out,
		"\nWARNING: database host %q does not look like a local address.\n"+
			"This operation will %s.\n",
		host,
		action,
	); err != nil {
		return fmt.Errorf("print remote host warning: %w", err)
	}
	if err := writef(out, "Type %q to continue or press enter to abort: ", host); err != nil {
		return fmt.Errorf("print remote host prompt: %w", err)
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(resp) != host {
		if writeErr := writeln(out, "\nRemote safeguard check failed; aborting."); writeErr != nil {
			return fmt.Errorf("print remote safeguard failure: %w", writeErr)
		}
		return errors.New("aborted by user")
	}
	return nil
}
