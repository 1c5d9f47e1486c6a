package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"ledgermatch/internal/booking"
	"ledgermatch/internal/config"
	"ledgermatch/internal/fortnox"
	"ledgermatch/internal/logger"
	"ledgermatch/internal/reconciliation"
	"ledgermatch/pkg/models"
)

// invoiceDocument is the JSON input describing one invoice to reconcile.
// Either expectedRows or lines must be given; lines are turned into the
// expected posting with the BAS chart.
type invoiceDocument struct {
	InvoiceType  string               `json:"invoiceType"`
	Invoice      models.Invoice       `json:"invoice"`
	Record       models.InvoiceRecord `json:"record,omitempty"`
	ExpectedRows []models.PostingRow  `json:"expectedRows,omitempty"`
	Lines        []models.InvoiceLine `json:"lines,omitempty"`
}

// loadInvoiceDocument reads an invoice document and converts it into a match request
func loadInvoiceDocument(path string) (reconciliation.MatchRequest, error) {
	const op = "loadInvoiceDocument"

	data, err := os.ReadFile(path)
	if err != nil {
		return reconciliation.MatchRequest{}, fmt.Errorf("%s: failed to read %s: %w", op, path, err)
	}

	var doc invoiceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return reconciliation.MatchRequest{}, fmt.Errorf("%s: invalid JSON in %s: %w", op, path, err)
	}

	return doc.matchRequest()
}

func (d invoiceDocument) matchRequest() (reconciliation.MatchRequest, error) {
	const op = "matchRequest"

	invoiceType, err := models.ParseInvoiceType(d.InvoiceType)
	if err != nil {
		return reconciliation.MatchRequest{}, fmt.Errorf("%s: %w", op, err)
	}
	if d.Invoice.ID == "" {
		return reconciliation.MatchRequest{}, fmt.Errorf("%s: invoice id is required", op)
	}
	if d.Invoice.Booked == "" {
		d.Invoice.Booked = models.BookedUnknown
	}

	expected := d.ExpectedRows
	if len(expected) == 0 && len(d.Lines) > 0 {
		expected, err = booking.ExpectedPosting(invoiceType, d.Lines)
		if err != nil {
			return reconciliation.MatchRequest{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if len(expected) == 0 {
		return reconciliation.MatchRequest{}, fmt.Errorf("%s: expectedRows or lines are required", op)
	}

	record := d.Record
	if record == nil {
		record = models.InvoiceRecord{}
	}

	return reconciliation.MatchRequest{
		InvoiceType:  invoiceType,
		Invoice:      d.Invoice,
		Record:       record,
		ExpectedRows: expected,
	}, nil
}

// findInvoiceDocuments finds all JSON documents in the folder, sorted by path
func findInvoiceDocuments(folderPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".json") {
			files = append(files, path)
		}

		return nil
	})

	sort.Strings(files)
	return files, err
}

// newEngine creates a matching engine on the Fortnox API from the environment
func newEngine(reg prometheus.Registerer) (*reconciliation.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	client, err := fortnox.NewClient(cfg.FortnoxConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Fortnox client: %w", err)
	}

	engine := reconciliation.NewEngine(client, cfg.MatchOptions(),
		reconciliation.WithLogger(logger.WithComponent("reconciliation")),
		reconciliation.WithMetrics(reconciliation.NewMetrics(reg)),
	)
	return engine, cfg, nil
}

// writeJSON writes v as indented JSON to path, or to out when path is empty or "-"
func writeJSON(path string, out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	data = append(data, '\n')

	if path == "" || path == "-" {
		_, err = out.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
