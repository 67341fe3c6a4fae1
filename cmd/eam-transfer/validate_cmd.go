package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/memstore"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/services"
)

type validateOptions struct {
	input      string
	entityType string
}

func newValidateCmd(g *globalOptions) *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an import file without contacting the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseEntityType(opts.entityType)
			if err != nil {
				return err
			}
			f, err := readInput(opts.input)
			if err != nil {
				return err
			}
			// validation never touches the store
			res := services.NewTransferService(memstore.New(), services.ImporterOptions{}).OnFileSelected(f, t)
			if err := writeJSONLine(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.IsValid {
				return withCode(exitValidation, fmt.Errorf("%d error(s) in %d row(s)", len(res.Errors), res.Summary.InvalidRows))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "File to validate: .xlsx, .csv or .json (required)")
	cmd.Flags().StringVar(&opts.entityType, "entity-type", "", "Entity type for files whose tabs name none")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
