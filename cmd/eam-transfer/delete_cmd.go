package main

import (
	"github.com/spf13/cobra"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/services"
)

type deleteOptions struct {
	companyID string
	yes       bool
}

func newDeleteCmd(g *globalOptions) *cobra.Command {
	var opts deleteOptions
	cmd := &cobra.Command{
		Use:   "delete <entity-type|all>",
		Short: "Delete every entity of a type, optionally within one company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.yes {
				return withCode(exitUsage, services.ErrDeleteNotConfirmed)
			}
			if _, err := services.ParseTypes(args[0]); err != nil {
				return serviceExit(err)
			}
			rt, err := openRuntime(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer rt.close()

			svc := services.NewTransferService(rt.stores, rt.importerOptions())
			n, err := svc.RunDelete(cmd.Context(), args[0], domain.Scope{CompanyID: opts.companyID})
			if err != nil {
				return serviceExit(err)
			}
			return writeJSONLine(cmd.OutOrStdout(), map[string]any{"target": args[0], "deleted": n})
		},
	}
	cmd.Flags().StringVar(&opts.companyID, "company", "", "Only delete entities of this company")
	cmd.Flags().BoolVar(&opts.yes, "yes", false, "Confirm the deletion")
	return cmd
}
