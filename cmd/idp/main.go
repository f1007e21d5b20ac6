// Command idp submits SciELO PS packages to the identifier pipeline
// from the command line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"scielocore/internal/config"
	"scielocore/internal/repository/postgres"
	"scielocore/internal/service/idprovider"
	"scielocore/internal/xmlsps"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT)
	defer stop()

	root := &cobra.Command{
		Use:           "idp",
		Short:         "SciELO identifier provider CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRequestIDCmd(), newGetXMLCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*idprovider.Pipeline, func(), error) {
	cfg := config.Load()
	logger, closeLog, err := config.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.IDPDatabaseURL)
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	pipeline := idprovider.NewPipeline(
		postgres.NewDocumentStore(repoConfig),
		postgres.NewRequestLog(repoConfig),
		logger,
	)
	cleanup := func() {
		pool.Close()
		closeLog()
	}
	return pipeline, cleanup, nil
}

type requestResult struct {
	File    string `json:"file"`
	V3      string `json:"v3,omitempty"`
	V2      string `json:"v2,omitempty"`
	AopPid  string `json:"aop_pid,omitempty"`
	Created bool   `json:"created"`
	Changed bool   `json:"changed"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newRequestIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request_id <source> <result_log>",
		Short: "Request identifiers for packages: a .xml or .zip file, or a newline-separated list of them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pipeline, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			paths, err := sourcePaths(args[0])
			if err != nil {
				return err
			}

			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("create result log: %w", err)
			}
			defer out.Close()
			enc := json.NewEncoder(out)

			for _, path := range paths {
				if err := ctx.Err(); err != nil {
					return err
				}
				result := processPackage(ctx, pipeline, path)
				if err := enc.Encode(result); err != nil {
					return fmt.Errorf("write result log: %w", err)
				}
			}
			return nil
		},
	}
}

func processPackage(ctx context.Context, pipeline *idprovider.Pipeline, path string) requestResult {
	result := requestResult{File: path}

	facts, err := xmlsps.ParsePackage(path)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	res, err := pipeline.RequestID(ctx, "cli", facts)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.V3 = res.V3
	result.V2 = res.V2
	result.AopPid = res.AopPid
	result.Created = res.Created
	result.Changed = res.Changed

	if res.Changed {
		output, err := writeRewritten(path, res.XML)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Output = output
	}
	return result
}

// writeRewritten saves the rewritten content next to the input: bare XML
// files are updated in place, ZIP packages get an .updated.zip sibling.
func writeRewritten(path, content string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return path, os.WriteFile(path, []byte(content), 0o644)
	}
	output := strings.TrimSuffix(path, filepath.Ext(path)) + ".updated.zip"
	return output, xmlsps.CreateZipPackage(output, content)
}

func sourcePaths(source string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".xml", ".zip":
		return []string{source}, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open source list: %w", err)
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			paths = append(paths, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read source list: %w", err)
	}
	return paths, nil
}

func newGetXMLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get_xml <v3>",
		Short: "Print the stored XML of a registered document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pipeline, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := pipeline.GetDocument(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.XML)
			return nil
		},
	}
}
