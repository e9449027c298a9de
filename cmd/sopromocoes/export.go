package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luansfranca/sopromocoes/export"
	"github.com/luansfranca/sopromocoes/models"
	"github.com/luansfranca/sopromocoes/storefront"
)

var (
	exportCategories []string
	exportQuery      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the deals each category page shows to CSV or JSONL",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	flags := exportCmd.Flags()
	flags.StringVarP(&cfg.ExportFile, "output", "o", cfg.ExportFile, "Output file path")
	flags.StringVar(&cfg.ExportFormat, "format", cfg.ExportFormat, "Output format: csv, json, or dual")
	flags.IntVar(&cfg.ExportWorkers, "workers", cfg.ExportWorkers, "Pipeline workers")
	flags.StringSliceVar(&exportCategories, "categories", nil, "Category slugs to export (default: the uncategorised page and every default category)")
	flags.StringVar(&exportQuery, "query", "", "Also export the results of this search")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, closeGateway, err := openGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer closeGateway()

	metrics := storefront.NewMetrics()
	factory, err := newControllerFactory(gw, cfg, metrics)
	if err != nil {
		return err
	}
	c, err := factory()
	if err != nil {
		return err
	}

	writer, err := export.NewWriter(cfg.ExportFormat, cfg.ExportFile)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	closeWriter := func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}

	slugs := exportCategories
	if len(slugs) == 0 {
		slugs = []string{""}
		for _, category := range models.DefaultCategories {
			slugs = append(slugs, category.Slug)
		}
	}

	p := export.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.ExportWorkers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	start := time.Now()
	submitted, err := export.Collect(ctx, c, slugs, p)
	if err == nil && exportQuery != "" {
		var n int
		n, err = export.CollectSearch(ctx, c, exportQuery, p)
		submitted += n
	}
	closeErr := p.Close()
	closeWriter()
	if closeErr != nil {
		return fmt.Errorf("pipeline shutdown: %w", closeErr)
	}
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	pm := p.GetMetrics()
	written, _ := pm["processed_products"].(int64)
	if written > 0 {
		if err := writer.Validate(); err != nil {
			return fmt.Errorf("output validation: %w", err)
		}
	}

	printSummary(cmd, slugs, submitted, written, pm, time.Since(start))
	return nil
}

func printSummary(cmd *cobra.Command, slugs []string, submitted int, written int64, pm map[string]interface{}, duration time.Duration) {
	out := cmd.OutOrStdout()
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Export complete")
	fmt.Fprintf(out, "  Pages:         %d\n", len(slugs))
	fmt.Fprintf(out, "  Submitted:     %d\n", submitted)
	fmt.Fprintf(out, "  Written:       %d\n", written)
	if valErrors, ok := pm["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(out, "  Skipped:       %v\n", valErrors)
	}
	fmt.Fprintf(out, "  Duration:      %v\n", duration)
	fmt.Fprintf(out, "  Output file:   %s\n", cfg.ExportFile)
	fmt.Fprintln(out, separator)
}
