package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/repo"
)

func lpCmd() *cobra.Command {
	lp := &cobra.Command{
		Use:     "lp",
		Aliases: []string{"plate"},
		Short:   "Manage license plates",
	}
	lp.AddCommand(lpCreateCmd())
	lp.AddCommand(lpListCmd())
	lp.AddCommand(lpShowCmd())
	return lp
}

func lpCreateCmd() *cobra.Command {
	var opts engine.LicensePlateCreate
	cmd := &cobra.Command{
		Use:   "create <lp-number>",
		Short: "Create a license plate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.OrgID = orgID(e)
				opts.LPNumber = args[0]
				opts.ActorID = actorID()
				lp, err := e.CreateLicensePlate(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(lp)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProductDescription, "product", "", "product description")
	cmd.Flags().StringVar(&opts.Quantity, "qty", "", "quantity (decimal)")
	cmd.Flags().StringVar(&opts.UOM, "uom", "", "unit of measure")
	cmd.Flags().StringVar(&opts.QAStatus, "qa-status", "", "Passed, Failed, Quarantine or Pending")
	cmd.Flags().StringVar(&opts.StageSuffix, "stage", "", "stage suffix")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location")
	cmd.Flags().StringVar(&opts.WOID, "wo", "", "work order id")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func lpListCmd() *cobra.Command {
	var f repo.LicensePlateFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List license plates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListLicensePlates(ctx, orgID(e), f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printPlates(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.QAStatus, "qa-status", "", "filter by QA status")
	cmd.Flags().StringVar(&f.WOID, "wo", "", "filter by work order")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "max rows")
	cmd.Flags().StringVar(&f.Cursor, "after", "", "start after this lp number")
	return cmd
}

func lpShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <lp-number|id>",
		Short: "Show a license plate and its inspections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var lp domain.LicensePlate
				var err error
				if _, perr := uuid.Parse(args[0]); perr == nil {
					lp, err = e.GetLicensePlate(ctx, orgID(e), args[0])
				} else {
					lp, err = e.GetLicensePlateByNumber(ctx, orgID(e), args[0])
				}
				if err != nil {
					return err
				}
				inspections, err := e.ListInspections(ctx, orgID(e), lp.LPNumber)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"license_plate": lp,
					"inspections":   inspections,
				})
			})
		},
	}
	return cmd
}

func inspectCmd() *cobra.Command {
	var result, notes string
	cmd := &cobra.Command{
		Use:   "inspect <lp-number>",
		Short: "Record a QA inspection",
		Long:  "Records an inspection result and sets the plate's QA status to it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.RecordInspection(ctx, engine.InspectionCreate{
					OrgID:    orgID(e),
					LPNumber: args[0],
					Result:   result,
					Notes:    notes,
					ActorID:  actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&result, "result", "", "Passed, Failed, Quarantine or Pending")
	cmd.Flags().StringVar(&notes, "notes", "", "inspection notes")
	_ = cmd.MarkFlagRequired("result")
	return cmd
}

func printPlates(items []domain.LicensePlate) {
	rows := make([]table.Row, 0, len(items))
	for _, lp := range items {
		rows = append(rows, table.Row{lp.LPNumber, lp.ProductDescription, lp.Quantity + " " + lp.UOM, lp.QAStatus, lp.WOID})
	}
	printTable(table.Row{"LP", "Product", "Quantity", "QA", "WO"}, rows)
	fmt.Printf("%d license plate(s)\n", len(items))
}
