package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sqliteadapter "github.com/astrozzc/manageiq-automation-engine/internal/adapters/db/sqlite"
	httpadapter "github.com/astrozzc/manageiq-automation-engine/internal/adapters/http"
	rpcadapter "github.com/astrozzc/manageiq-automation-engine/internal/adapters/rpcjson"
	"github.com/astrozzc/manageiq-automation-engine/internal/adapters/yamltree"
	"github.com/astrozzc/manageiq-automation-engine/internal/application"
	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"github.com/astrozzc/manageiq-automation-engine/internal/logger"
	"github.com/urfave/cli/v3"
)

const serviceName = "miqae"

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  serviceName,
		Usage: "Automate datastore importer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-path", Value: "miqae.db", Usage: "SQLite database path", Sources: cli.EnvVars("MIQAE_DB_PATH")},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", Sources: cli.EnvVars("MIQAE_LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "text or json", Sources: cli.EnvVars("MIQAE_LOG_FORMAT")},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			importCommand(),
			domainsCommand(),
			referencesCommand(),
			serverCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

// runtime holds the datastore and the import service built from the global
// flags.
type runtime struct {
	repo    *sqliteadapter.Repository
	service *application.ImportService
	log     *slog.Logger
	close   func()
}

func newLogger(c *cli.Command) (*slog.Logger, error) {
	return logger.New(serviceName, c.String("log-level"), c.String("log-format"), os.Stderr)
}

func openRuntime(ctx context.Context, c *cli.Command) (*runtime, error) {
	lg, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	db, err := sqliteadapter.Open(c.String("db-path"))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if _, err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	repo := sqliteadapter.NewRepository(db)
	service := application.NewImportService(repo, repo, repo, application.Config{Logger: lg})
	return &runtime{
		repo:    repo,
		service: service,
		log:     lg,
		close:   func() { _ = sqlDB.Close() },
	}, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			db, err := sqliteadapter.Open(c.String("db-path"))
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer func() { _ = sqlDB.Close() }()
			}
			version, err := sqliteadapter.RunMigrations(ctx, db)
			if err != nil {
				return err
			}
			fmt.Printf("database at version %d\n", version)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import automate domains from an export directory or zip archive",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "import-dir", Required: true, Usage: "export directory or .zip archive", Sources: cli.EnvVars("MIQAE_IMPORT_DIR")},
			&cli.StringFlag{Name: "domain", Value: domain.AllDomains, Usage: "domain folder to import, * for every domain"},
			&cli.StringFlag{Name: "import-as", Usage: "rename the imported domain"},
			&cli.StringFlag{Name: "namespace", Usage: "only import this namespace path"},
			&cli.StringFlag{Name: "class", Usage: "only import this class"},
			&cli.BoolFlag{Name: "preview", Usage: "report what would change without writing"},
			&cli.BoolFlag{Name: "overwrite", Usage: "replace the contents of existing domains"},
			&cli.BoolFlag{Name: "restore", Usage: "keep enabled and tenant attributes from the export"},
			&cli.UintFlag{Name: "tenant-id", Usage: "tenant owning created domains"},
			&cli.BoolFlag{Name: "enabled", Usage: "set the enabled flag of imported domains"},
			&cli.StringFlag{Name: "source", Usage: "set the source of imported domains: user or user_locked"},
			&cli.StringFlag{Name: "origin", Usage: "override the tree origin: filesystem, archive or git"},
			&cli.BoolFlag{Name: "enforce-policy", Usage: "apply the domain import policy to this run"},
			&cli.StringFlag{Name: "socket", Usage: "send the import to a running server over its JSON-RPC socket", Sources: cli.EnvVars("MIQAE_RPC_SOCKET")},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			opts, err := importOptions(c)
			if err != nil {
				return err
			}

			var result application.ImportResult
			if socket := c.String("socket"); socket != "" {
				params := rpcadapter.ImportParams{Path: c.String("import-dir"), Domain: c.String("domain"), ImportOptions: opts}
				if err := newRPCClient(socket).call(ctx, "import.run", params, &result); err != nil {
					return err
				}
			} else {
				result, err = runLocalImport(ctx, c, opts)
				if err != nil {
					return err
				}
			}

			if c.Bool("json") {
				return printJSON(result)
			}
			printImportResult(result)
			return nil
		},
	}
}

func importOptions(c *cli.Command) (application.ImportOptions, error) {
	opts := application.ImportOptions{
		Restore:   c.Bool("restore"),
		Preview:   c.Bool("preview"),
		Overwrite: c.Bool("overwrite"),
		ImportAs:  c.String("import-as"),
		Namespace: c.String("namespace"),
		ClassName: c.String("class"),
		Origin:    domain.Origin(c.String("origin")),
		Trusted:   !c.Bool("enforce-policy"),
	}
	if c.IsSet("tenant-id") {
		v := c.Uint("tenant-id")
		opts.TenantID = &v
	}
	if c.IsSet("enabled") {
		v := c.Bool("enabled")
		opts.Enabled = &v
	}
	if c.IsSet("source") {
		v := domain.Source(c.String("source"))
		if !v.Valid() {
			return opts, fmt.Errorf("invalid source %q", v)
		}
		opts.Source = &v
	}
	switch opts.Origin {
	case "", domain.OriginFilesystem, domain.OriginArchive, domain.OriginGit:
	default:
		return opts, fmt.Errorf("invalid origin %q", opts.Origin)
	}
	return opts, nil
}

func runLocalImport(ctx context.Context, c *cli.Command, opts application.ImportOptions) (application.ImportResult, error) {
	rt, err := openRuntime(ctx, c)
	if err != nil {
		return application.ImportResult{}, err
	}
	defer rt.close()

	src, err := yamltree.Open(c.String("import-dir"))
	if err != nil {
		return application.ImportResult{}, err
	}
	defer func() { _ = src.Close() }()

	return rt.service.Import(ctx, src, c.String("domain"), opts)
}

func domainsCommand() *cli.Command {
	return &cli.Command{
		Name:  "domains",
		Usage: "Domain commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List domains in priority order",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := openRuntime(ctx, c)
					if err != nil {
						return err
					}
					defer rt.close()

					list, err := rt.service.ListDomains(ctx)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(list)
					}
					printDomains(list)
					return nil
				},
			},
		},
	}
}

func referencesCommand() *cli.Command {
	return &cli.Command{
		Name:  "references",
		Usage: "Entities that playbook methods can refer to by name",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a reference",
				Flags: []cli.Flag{
					kindFlag(),
					&cli.StringFlag{Name: "name", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := openRuntime(ctx, c)
					if err != nil {
						return err
					}
					defer rt.close()

					ref, err := rt.repo.CreateReference(ctx, domain.Reference{Kind: domain.ReferenceKind(c.String("kind")), Name: c.String("name")})
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(ref)
					}
					printReferences([]domain.Reference{ref})
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List references of one kind",
				Flags: []cli.Flag{
					kindFlag(),
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := openRuntime(ctx, c)
					if err != nil {
						return err
					}
					defer rt.close()

					list, err := rt.repo.ListReferences(ctx, domain.ReferenceKind(c.String("kind")))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(list)
					}
					printReferences(list)
					return nil
				},
			},
		},
	}
}

func kindFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "kind", Required: true, Usage: "repository, playbook, credential, vault_credential or cloud_credential"}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the HTTP import API and the JSON-RPC socket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address", Sources: cli.EnvVars("MIQAE_ADDR")},
			&cli.StringFlag{Name: "rpc-socket", Value: "/tmp/miqae.sock", Usage: "JSON-RPC unix socket path", Sources: cli.EnvVars("MIQAE_RPC_SOCKET")},
			&cli.StringFlag{Name: "import-root", Required: true, Usage: "directory that import paths are resolved in", Sources: cli.EnvVars("MIQAE_IMPORT_ROOT")},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, c, c.String("addr"), c.String("rpc-socket"), c.String("import-root"))
		},
	}
}

func runServer(ctx context.Context, c *cli.Command, addr, rpcSocket, importRoot string) error {
	rt, err := openRuntime(ctx, c)
	if err != nil {
		return err
	}
	defer rt.close()

	router := httpadapter.NewRouter(rt.service, httpadapter.Config{ImportRoot: importRoot, Logger: rt.log})
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(rpcSocket, rt.service, rpcadapter.Config{ImportRoot: importRoot, Logger: rt.log})
	if err != nil {
		return err
	}
	defer func() {
		_ = rpcSrv.Close()
	}()
	rt.log.Info("json-rpc listening", "socket", rpcSocket)

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("server listening", "addr", srv.Addr, "import_root", importRoot)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		rt.log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
