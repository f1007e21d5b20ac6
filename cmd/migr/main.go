// Command migr drives the legacy back-migration: registering descriptor
// files, pulling XML and requesting identifiers per journal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"scielocore/internal/config"
	"scielocore/internal/queue"
	"scielocore/internal/repository/postgres"
	"scielocore/internal/service/idprovider"
	"scielocore/internal/service/migration"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT)
	defer stop()

	root := &cobra.Command{
		Use:           "migr",
		Short:         "SciELO migration CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRegisterCmd(),
		newMigrateCmd(),
		newRequestIDCmd(),
		newUndoCmd(),
		newGetXMLCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

type app struct {
	cfg          *config.Config
	orchestrator *migration.Orchestrator
	jobs         *queue.Pool
	cleanup      func()
}

func setup(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, closeLog, err := config.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	idpPool, err := postgres.CreateConnectionPool(ctx, cfg.IDPDatabaseURL)
	if err != nil {
		closeLog()
		return nil, err
	}
	migrPool, err := postgres.CreateConnectionPool(ctx, cfg.MigrationDatabaseURL)
	if err != nil {
		idpPool.Close()
		closeLog()
		return nil, err
	}

	tables := postgres.NewTableNames(cfg.TablePrefix)
	idpRepoConfig := &postgres.RepositoryConfig{Pool: idpPool, Tables: tables, Logger: logger}
	migrRepoConfig := &postgres.RepositoryConfig{Pool: migrPool, Tables: tables, Logger: logger}

	docStore := postgres.NewDocumentStore(idpRepoConfig)
	pipeline := idprovider.NewPipeline(docStore, postgres.NewRequestLog(idpRepoConfig), logger)

	fetcher := migration.NewFetcher(cfg.FetchTimeout)
	var sources []migration.PullSource
	if cfg.WebsiteURL != "" {
		sources = append(sources, migration.NewWebsiteSource(cfg.WebsiteURL, fetcher))
	}
	if cfg.XMLFolderPath != "" {
		sources = append(sources, migration.NewFilesystemSource(cfg.XMLFolderPath))
	}
	if cfg.ArticleMetaURL != "" {
		sources = append(sources, migration.NewArticleMetaSource(cfg.ArticleMetaURL, cfg.Collection, fetcher))
	}

	var jobs *queue.Pool
	if cfg.ConcurrentProcessing {
		jobs = queue.New(ctx, cfg.QueueWorkers, logger)
	}

	orchestrator := migration.NewOrchestrator(
		postgres.NewMigrationStore(migrRepoConfig),
		docStore,
		pipeline,
		sources,
		jobs,
		logger,
	)

	return &app{
		cfg:          cfg,
		orchestrator: orchestrator,
		jobs:         jobs,
		cleanup: func() {
			migrPool.Close()
			idpPool.Close()
			closeLog()
		},
	}, nil
}

func (a *app) close() {
	if err := a.jobs.Close(); err != nil {
		log.Printf("Warning: queue drain failed: %v", err)
	}
	a.cleanup()
}

func newRegisterCmd() *cobra.Command {
	var skipUpdate bool
	cmd := &cobra.Command{
		Use:   "register_migration <descriptors.jsonl> <issn_output>",
		Short: "Register migration rows from a JSONL descriptor file and write the distinct ISSNs seen",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open descriptors: %w", err)
			}
			defer f.Close()

			issns, err := a.orchestrator.RegisterFromJSONL(ctx, f, skipUpdate)
			if err != nil {
				return err
			}

			out := strings.Join(issns, "\n")
			if out != "" {
				out += "\n"
			}
			if err := os.WriteFile(args[1], []byte(out), 0o644); err != nil {
				return fmt.Errorf("write issn list: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %d journals\n", len(issns))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipUpdate, "skip_update", false, "Leave already-registered rows untouched")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var xmlFolderPath, collection string
	cmd := &cobra.Command{
		Use:   "migrate <issn_list>",
		Short: "Pull XML and request identifiers for every pending row of the listed journals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if xmlFolderPath != "" {
				cfg.XMLFolderPath = xmlFolderPath
			}
			if collection != "" {
				cfg.Collection = collection
			}
			return forEachJournal(cmd.Context(), cfg, args[0], func(ctx context.Context, a *app, issn string) error {
				return a.orchestrator.MigrateJournal(ctx, issn)
			})
		},
	}
	cmd.Flags().StringVar(&xmlFolderPath, "xml_folder_path", "", "Root of the legacy XML tree (overrides XML_FOLDER_PATH)")
	cmd.Flags().StringVar(&collection, "collection", "", "ArticleMeta collection (overrides COLLECTION)")
	return cmd
}

func newRequestIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request_id <issn_list>",
		Short: "Request identifiers for every row of the listed journals that already holds XML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachJournal(cmd.Context(), config.Load(), args[0], func(ctx context.Context, a *app, issn string) error {
				return a.orchestrator.RequestIDForJournal(ctx, issn)
			})
		},
	}
}

func newUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo_id_request <issn_list>",
		Short: "Move migrated rows of the listed journals back so the id request can be replayed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachJournal(cmd.Context(), config.Load(), args[0], func(ctx context.Context, a *app, issn string) error {
				for _, isAop := range []bool{true, false} {
					if err := a.orchestrator.UndoIDRequest(ctx, issn, isAop); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newGetXMLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get_xml <v2>",
		Short: "Print the stored XML of a migration row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.close()

			xml, err := a.orchestrator.GetXML(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), xml)
			return nil
		},
	}
}

func forEachJournal(ctx context.Context, cfg *config.Config, listPath string, fn func(context.Context, *app, string) error) error {
	issns, err := readLines(listPath)
	if err != nil {
		return err
	}

	a, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	for _, issn := range issns {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, a, issn); err != nil {
			return fmt.Errorf("journal %s: %w", issn, err)
		}
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
