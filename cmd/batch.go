package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"ledgermatch/internal/logger"
	"ledgermatch/internal/reconciliation"
	"ledgermatch/pkg/services"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Reconcile every invoice document in a folder",
	Long: `Reconcile all invoice documents (*.json) in a folder against Fortnox in
parallel and print one line per invoice plus a summary. The full reports can
be written to a JSON file.

Each invoice gets its own runtime budget; the Fortnox client's rate limit is
shared by all workers. An authorization failure stops the whole batch.

Required environment variables:
  FORTNOX_ACCESS_TOKEN - Bearer token for the Fortnox API

Optional environment variables:
  BATCH_WORKERS - Number of parallel workers (default: 4)`,
	Example: `  # Reconcile a folder of invoices
  ledgermatch batch ./invoices

  # Keep the reports and export matching metrics for node_exporter
  ledgermatch batch ./invoices --output reports.json --metrics-file ledgermatch.prom`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// BatchResult is the outcome of reconciling one invoice document
type BatchResult struct {
	Filename string                 `json:"filename"`
	Report   *reconciliation.Report `json:"report,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Status   string                 `json:"status"` // "passed", "issues", "error"
	Index    int                    `json:"-"`
	err      error
}

// WorkerJob is one invoice document to reconcile
type WorkerJob struct {
	FilePath string
	Index    int
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("output", "o", "", "Write all reports as JSON to this file")
	batchCmd.Flags().String("metrics-file", "", "Write Prometheus metrics in text format to this file")
	batchCmd.Flags().Duration("timeout", 30*time.Minute, "Overall timeout of the batch")
	batchCmd.Flags().Bool("verbose", false, "Log the matched voucher of every invoice")
}

func runBatch(cmd *cobra.Command, args []string) error {
	batchID := uuid.NewString()
	log := logger.WithRunID(logger.WithComponent("batch"), batchID)

	folderPath := args[0]
	output, _ := cmd.Flags().GetString("output")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	verbose, _ := cmd.Flags().GetBool("verbose")

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	registry := prometheus.NewRegistry()
	engine, cfg, err := newEngine(registry)
	if err != nil {
		return err
	}

	files, err := findInvoiceDocuments(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find invoice documents: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintln(out, "No invoice documents found in folder.")
		return nil
	}

	log.Info().
		Str("folder", folderPath).
		Int("documents", len(files)).
		Int("workers", cfg.BatchWorkers).
		Msg("Starting batch reconciliation")

	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out, "                         BATCH RECONCILIATION")
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "Folder: %s\n", folderPath)
	fmt.Fprintf(out, "Processing %d invoices with %d parallel workers...\n\n", len(files), cfg.BatchWorkers)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	results := reconcileInParallel(ctx, cancel, engine, files, cfg.BatchWorkers, log, verbose, out)

	passed, withIssues, failed := 0, 0, 0
	var authErr error
	for _, result := range results {
		switch result.Status {
		case "passed":
			passed++
		case "issues":
			withIssues++
		default:
			failed++
			if authErr == nil && services.IsAuthorizationError(result.err) {
				authErr = result.err
			}
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out, "                 RESULT")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Passed: %d\n", passed)
	if withIssues > 0 {
		fmt.Fprintf(out, "With issues: %d\n", withIssues)
	}
	if failed > 0 {
		fmt.Fprintf(out, "Errors: %d\n", failed)
	}

	if output != "" {
		if err := writeJSON(output, out, results); err != nil {
			return fmt.Errorf("failed to write reports: %w", err)
		}
		fmt.Fprintf(out, "Reports: %s\n", output)
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	log.Info().
		Int("total", len(files)).
		Int("passed", passed).
		Int("issues", withIssues).
		Int("errors", failed).
		Msg("Batch reconciliation completed")

	if authErr != nil {
		return fmt.Errorf("Fortnox rejected the access token, batch aborted: %w", authErr)
	}
	return nil
}

// reconcileSingle reconciles one invoice document and returns the result
func reconcileSingle(ctx context.Context, engine *reconciliation.Engine, path string) BatchResult {
	result := BatchResult{Status: "error"}

	req, err := loadInvoiceDocument(path)
	if err != nil {
		result.err = err
		result.Error = err.Error()
		return result
	}

	report, err := engine.Attest(ctx, req)
	if err != nil {
		result.err = err
		result.Error = err.Error()
		return result
	}

	result.Report = report
	result.Status = "passed"
	if len(report.Issues) > 0 {
		result.Status = "issues"
	}
	return result
}

// reconcileInParallel reconciles documents using a worker pool. Results keep
// the input order. An authorization failure cancels the remaining work.
func reconcileInParallel(ctx context.Context, cancel context.CancelFunc, engine *reconciliation.Engine, files []string, numWorkers int, log zerolog.Logger, verbose bool, out io.Writer) []BatchResult {
	jobs := make(chan WorkerJob, len(files))
	results := make([]BatchResult, len(files))

	var processedCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				log.Debug().
					Int("worker", workerID).
					Str("file", job.FilePath).
					Int("index", job.Index+1).
					Msg("Worker reconciling invoice")

				result := reconcileSingle(ctx, engine, job.FilePath)
				result.Index = job.Index
				result.Filename = filepath.Base(job.FilePath)
				results[job.Index] = result

				if services.IsAuthorizationError(result.err) {
					cancel()
				}

				if verbose && result.Report != nil && result.Report.Resolution != nil && result.Report.Resolution.Match != nil {
					log.Info().
						Str("file", result.Filename).
						Str("voucher", result.Report.Resolution.Match.VoucherRef.String()).
						Float64("score", result.Report.Resolution.Match.Score).
						Str("source", string(result.Report.Resolution.PostingSource)).
						Msg("Invoice reconciled")
				}

				mu.Lock()
				processedCount++
				fmt.Fprintf(out, "[%d/%d] %s - %s", processedCount, len(files), result.Filename, getStatusEmoji(result.Status))
				if result.Error != "" {
					fmt.Fprintf(out, " (%s)", result.Error)
				} else if match := result.Report.Resolution.Match; match != nil {
					fmt.Fprintf(out, " (%s, score %.2f, %d issues)", match.VoucherRef, match.Score, len(result.Report.Issues))
				} else {
					fmt.Fprintf(out, " (no voucher, %d issues)", len(result.Report.Issues))
				}
				fmt.Fprintln(out)
				mu.Unlock()
			}
		}(w)
	}

	for i, file := range files {
		jobs <- WorkerJob{
			FilePath: file,
			Index:    i,
		}
	}
	close(jobs)

	wg.Wait()

	return results
}

// getStatusEmoji returns an emoji for the reconciliation status
func getStatusEmoji(status string) string {
	switch status {
	case "passed":
		return "✅"
	case "issues":
		return "⚠️"
	case "error":
		return "❌"
	default:
		return "❓"
	}
}
