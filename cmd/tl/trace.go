package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"traceline/internal/engine"
	"traceline/internal/export"
	"traceline/internal/repo"
	"traceline/internal/trace"
)

func traceCmd() *cobra.Command {
	tr := &cobra.Command{
		Use:   "trace",
		Short: "Trace license plate genealogy",
		Long:  "forward follows parent -> child links (where did this go), backward follows them in reverse (what went into this).",
	}
	tr.AddCommand(traceDirectionCmd(repo.Forward, "Everything made from a license plate"))
	tr.AddCommand(traceDirectionCmd(repo.Backward, "Everything a license plate was made from"))
	return tr
}

func traceDirectionCmd(dir repo.Direction, short string) *cobra.Command {
	var maxDepth int
	var includeReversed bool
	var format string
	cmd := &cobra.Command{
		Use:   string(dir) + " <lp-number>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				format = "json"
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req := engine.TraceRequest{
					OrgID:     orgID(e),
					LPNumber:  args[0],
					Direction: string(dir),
					MaxDepth:  maxDepth,
				}
				if cmd.Flags().Changed("include-reversed") {
					req.IncludeReversed = &includeReversed
				}
				res, err := e.Trace(ctx, req)
				if err != nil {
					return err
				}
				return printTrace(res, format)
			})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "max levels to follow (0 uses config)")
	cmd.Flags().BoolVar(&includeReversed, "include-reversed", false, "follow reversed links")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, csv, json")
	return cmd
}

func printTrace(res engine.TraceResult, format string) error {
	switch strings.ToLower(format) {
	case "json":
		return printJSON(res)
	case "csv":
		if !res.Found {
			return fmt.Errorf("%s", res.Message)
		}
		_, err := fmt.Fprint(os.Stdout, export.CSV(trace.Flatten(res.Tree)))
		return err
	case "table", "":
		if !res.Found {
			fmt.Println(res.Message)
			return nil
		}
		fmt.Println(export.Table(trace.Flatten(res.Tree)))
		fmt.Println(export.Summary(res.Tree.Summary))
		if len(res.Tree.Path) > 0 {
			fmt.Printf("Path: %s\n", strings.Join(res.Tree.Path, " > "))
		}
		for _, a := range res.Tree.Anomalies {
			fmt.Printf("warning: %s node=%s parent=%s\n", a.Kind, a.NodeID, a.ParentID)
		}
		if res.HasMoreLevels {
			fmt.Printf("more levels exist beyond depth %d; raise --max-depth to see them\n", res.MaxDepth)
		}
		return nil
	default:
		return fmt.Errorf("invalid format %q: must be table, csv or json", format)
	}
}

func genealogyCmd() *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "genealogy <lp-number>",
		Short: "Show backward and forward traces of a license plate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.Genealogy(ctx, orgID(e), args[0], maxDepth)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				fmt.Printf("%s  %s  %s %s  [%s]\n\n", g.LicensePlate.LPNumber, g.LicensePlate.ProductDescription, g.LicensePlate.Quantity, g.LicensePlate.UOM, g.LicensePlate.QAStatus)
				fmt.Println("Backward:")
				if err := printTrace(g.Backward, "table"); err != nil {
					return err
				}
				fmt.Println("\nForward:")
				return printTrace(g.Forward, "table")
			})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "max levels to follow (0 uses config)")
	return cmd
}
