package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

func linkCmd() *cobra.Command {
	link := &cobra.Command{
		Use:   "link",
		Short: "Record genealogy links",
		Long:  "Links take license plate numbers; they are resolved to ids before the link is written.",
	}
	link.AddCommand(linkConsumeCmd())
	link.AddCommand(linkOutputCmd())
	link.AddCommand(linkSplitCmd())
	link.AddCommand(linkMergeCmd())
	link.AddCommand(linkReverseCmd())
	return link
}

// resolveIDs maps plate numbers to ids.
func resolveIDs(ctx context.Context, e engine.Engine, numbers ...string) ([]string, error) {
	ids := make([]string, 0, len(numbers))
	for _, n := range numbers {
		lp, err := e.GetLicensePlateByNumber(ctx, orgID(e), n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, lp.ID)
	}
	return ids, nil
}

func linkConsumeCmd() *cobra.Command {
	var qty, wo, op string
	cmd := &cobra.Command{
		Use:   "consume <parent-lp> <child-lp>",
		Short: "Record a parent plate consumed into a child",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := resolveIDs(ctx, e, args[0], args[1])
				if err != nil {
					return err
				}
				l, err := e.LinkConsumption(ctx, engine.LinkConsumptionOptions{
					OrgID:       orgID(e),
					ParentLPID:  ids[0],
					ChildLPID:   ids[1],
					Quantity:    qty,
					WOID:        wo,
					OperationID: op,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printLinks(l)
			})
		},
	}
	cmd.Flags().StringVar(&qty, "qty", "", "consumed quantity")
	cmd.Flags().StringVar(&wo, "wo", "", "work order id")
	cmd.Flags().StringVar(&op, "operation", "", "operation id")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func linkOutputCmd() *cobra.Command {
	var consumed []string
	var wo, op string
	cmd := &cobra.Command{
		Use:   "output <output-lp>",
		Short: "Record the plates consumed to produce an output plate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := resolveIDs(ctx, e, append(consumed, args[0])...)
				if err != nil {
					return err
				}
				links, err := e.LinkOutput(ctx, engine.LinkOutputOptions{
					OrgID:         orgID(e),
					ConsumedLPIDs: ids[:len(ids)-1],
					OutputLPID:    ids[len(ids)-1],
					WOID:          wo,
					OperationID:   op,
					ActorID:       actorID(),
				})
				if err != nil {
					return err
				}
				return printLinks(links...)
			})
		},
	}
	cmd.Flags().StringSliceVar(&consumed, "from", nil, "consumed lp numbers")
	cmd.Flags().StringVar(&wo, "wo", "", "work order id")
	cmd.Flags().StringVar(&op, "operation", "", "operation id")
	return cmd
}

func linkSplitCmd() *cobra.Command {
	var qty string
	cmd := &cobra.Command{
		Use:   "split <source-lp> <new-lp>",
		Short: "Record a new plate split off a source plate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := resolveIDs(ctx, e, args[0], args[1])
				if err != nil {
					return err
				}
				l, err := e.LinkSplit(ctx, engine.LinkSplitOptions{
					OrgID:      orgID(e),
					SourceLPID: ids[0],
					NewLPID:    ids[1],
					Quantity:   qty,
					ActorID:    actorID(),
				})
				if err != nil {
					return err
				}
				return printLinks(l)
			})
		},
	}
	cmd.Flags().StringVar(&qty, "qty", "", "split quantity")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func linkMergeCmd() *cobra.Command {
	var sources []string
	var wo string
	cmd := &cobra.Command{
		Use:   "merge <target-lp>",
		Short: "Record source plates merged into a target plate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := resolveIDs(ctx, e, append(sources, args[0])...)
				if err != nil {
					return err
				}
				links, err := e.LinkMerge(ctx, engine.LinkMergeOptions{
					OrgID:       orgID(e),
					SourceLPIDs: ids[:len(ids)-1],
					TargetLPID:  ids[len(ids)-1],
					WOID:        wo,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printLinks(links...)
			})
		},
	}
	cmd.Flags().StringSliceVar(&sources, "from", nil, "source lp numbers")
	cmd.Flags().StringVar(&wo, "wo", "", "work order id")
	return cmd
}

func linkReverseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse <link-id>",
		Short: "Mark a link reversed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.ReverseLink(ctx, orgID(e), args[0], actorID())
				if err != nil {
					return err
				}
				return printLinks(l)
			})
		},
	}
	return cmd
}

func printLinks(links ...domain.GenealogyLink) error {
	if len(links) == 1 {
		return printJSONOrTable(links[0])
	}
	return printJSONOrTable(links)
}

func workOrderCmd() *cobra.Command {
	wo := &cobra.Command{Use: "workorder", Aliases: []string{"wo"}, Short: "Work order genealogy"}
	wo.AddCommand(&cobra.Command{
		Use:   "genealogy <wo-id>",
		Short: "List active links recorded for a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.WorkOrderGenealogy(ctx, orgID(e), args[0])
				if err != nil {
					return err
				}
				if g.Total == 0 && !viper.GetBool("json") {
					fmt.Printf("no links recorded for work order %s\n", args[0])
					return nil
				}
				return printJSONOrTable(g)
			})
		},
	})
	return wo
}
