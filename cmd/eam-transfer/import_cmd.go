package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/progress"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/services"
)

type importOptions struct {
	input      string
	outputDir  string
	entityType string
	apply      bool
	strict     bool
}

func newImportCmd(g *globalOptions) *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an xlsx, csv or json file into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "File to import (required)")
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "Output directory for the manifest (default: input dir)")
	cmd.Flags().StringVar(&opts.entityType, "entity-type", "", "Entity type for files whose tabs name none")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write to the store (default is dry-run)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Refuse to import files with validation errors")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

type importManifest struct {
	Version    int                     `json:"version"`
	RunID      string                  `json:"run_id"`
	Backend    string                  `json:"backend"`
	Input      string                  `json:"input"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Summary    map[string]int          `json:"summary"`
	Mapping    []services.MappingEntry `json:"mapping"`
	Errors     []string                `json:"errors,omitempty"`
}

type importLine struct {
	Status   string                  `json:"status"`
	Manifest string                  `json:"manifest,omitempty"`
	Summary  *services.ImportSummary `json:"summary"`
}

func runImport(cmd *cobra.Command, g *globalOptions, opts importOptions) error {
	t, err := parseEntityType(opts.entityType)
	if err != nil {
		return err
	}
	f, err := readInput(opts.input)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), g)
	if err != nil {
		return err
	}
	defer rt.close()

	iopts := rt.importerOptions()
	if opts.strict {
		iopts.StrictValidation = true
	}
	svc := services.NewTransferService(rt.stores, iopts)

	summary, err := svc.RunImport(cmd.Context(), f, services.ImportSettings{EntityType: t, DryRun: !opts.apply}, progress.LogSink(rt.log()))
	if err != nil && summary == nil {
		return serviceExit(err)
	}
	if errors.Is(err, services.ErrValidationFailed) {
		_ = writeJSONLine(cmd.OutOrStdout(), importLine{Status: "rejected", Summary: summary})
		return serviceExit(err)
	}

	line := importLine{Status: "dry_run", Summary: summary}
	if opts.apply {
		line.Status = "applied"
		dir := opts.outputDir
		if dir == "" {
			dir = filepath.Dir(opts.input)
		}
		path := filepath.Join(dir, fmt.Sprintf("import_manifest_%s_%s.json", summary.StartedAt.UTC().Format("20060102T150405Z"), summary.RunID))
		if werr := writeJSONFile(path, manifestOf(summary, rt.conf.StoreBackend, opts.input)); werr != nil {
			return werr
		}
		line.Manifest = path
	}
	if werr := writeJSONLine(cmd.OutOrStdout(), line); werr != nil {
		return werr
	}
	if err != nil {
		// cancelled mid-run; the summary above covers what was done
		return serviceExit(err)
	}
	if summary.HasFailures() {
		return withCode(exitPartial, fmt.Errorf("%d row(s) failed, %d relationship update(s) failed", summary.TotalFailed, summary.TotalRelationshipFailed))
	}
	return nil
}

func manifestOf(s *services.ImportSummary, backend, input string) *importManifest {
	m := &importManifest{
		Version:    1,
		RunID:      s.RunID,
		Backend:    backend,
		Input:      input,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Summary: map[string]int{
			"imported":             s.TotalImported,
			"failed":               s.TotalFailed,
			"relationships_failed": s.TotalRelationshipFailed,
		},
		Mapping: s.Mapping.Entries(),
	}
	for _, r := range s.Results {
		m.Errors = append(m.Errors, r.Errors...)
		m.Errors = append(m.Errors, r.RelationshipErrors...)
	}
	return m
}
