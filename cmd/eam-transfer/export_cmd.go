package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/formats"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/services"
)

type exportOptions struct {
	output    string
	types     string
	format    string
	companyID string
}

func newExportCmd(g *globalOptions) *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export catalog entities into an xlsx, csv or json file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.output, "output", "", "Output file (required)")
	cmd.Flags().StringVar(&opts.types, "types", services.AllEntityTypes, "Entity types, comma separated, or all")
	cmd.Flags().StringVar(&opts.format, "format", "", "xlsx, csv or json (default: output file extension)")
	cmd.Flags().StringVar(&opts.companyID, "company", "", "Only export entities of this company")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

type exportLine struct {
	Output string         `json:"output"`
	Format formats.Kind   `json:"format"`
	Rows   map[string]int `json:"rows"`
}

func runExport(cmd *cobra.Command, g *globalOptions, opts exportOptions) error {
	if strings.TrimSpace(opts.output) == "" {
		return withCode(exitUsage, fmt.Errorf("--output is required"))
	}
	format := opts.format
	if format == "" {
		format = filepath.Ext(opts.output)
	}
	kind, err := formats.ParseKind(format)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("invalid --format: %w", err))
	}
	types, err := services.ParseTypes(opts.types)
	if err != nil {
		return serviceExit(err)
	}
	if kind == formats.KindCSV && len(types) != 1 {
		return withCode(exitUsage, fmt.Errorf("csv export holds exactly one entity type, got %d", len(types)))
	}

	rt, err := openRuntime(cmd.Context(), g)
	if err != nil {
		return err
	}
	defer rt.close()

	svc := services.NewTransferService(rt.stores, rt.importerOptions())
	f, err := svc.RunExport(cmd.Context(), types, kind.Format(), domain.Scope{CompanyID: opts.companyID})
	if err != nil {
		return serviceExit(err)
	}

	if dir := filepath.Dir(opts.output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return withCode(exitStore, fmt.Errorf("mkdir %s: %w", dir, err))
		}
	}
	out, err := os.Create(opts.output)
	if err != nil {
		return withCode(exitStore, fmt.Errorf("create %s: %w", opts.output, err))
	}
	if err := formats.Write(out, f, kind); err != nil {
		_ = out.Close()
		return withCode(exitStore, fmt.Errorf("write %s: %w", opts.output, err))
	}
	if err := out.Close(); err != nil {
		return withCode(exitStore, fmt.Errorf("close %s: %w", opts.output, err))
	}

	line := exportLine{Output: opts.output, Format: kind, Rows: map[string]int{}}
	for _, tab := range f.Tabs {
		line.Rows[tab.Name] = len(tab.Records)
	}
	return writeJSONLine(cmd.OutOrStdout(), line)
}
