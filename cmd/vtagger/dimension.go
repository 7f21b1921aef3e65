package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/catherinevee/vtagger/internal/dsl"
	"github.com/spf13/cobra"
)

func newDimensionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dimension",
		Short: "Manage the compiled dimension chain",
	}

	cmd.AddCommand(newDimensionListCmd())
	cmd.AddCommand(newDimensionPutCmd())
	cmd.AddCommand(newDimensionDeleteCmd())
	return cmd
}

func newDimensionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dimensions in ascending order_index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			for _, d := range a.dimensions.Compiled() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", d.OrderIndex, d.Name, d.DefaultValue)
			}
			return nil
		},
	}
}

func newDimensionPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <file.json>",
		Short: "Validate and upsert a dimension record from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			var rec dsl.Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			a, err := newApp()
			if err != nil {
				return err
			}

			validationErrs, err := a.dimensions.Put(rec)
			if err != nil {
				return err
			}
			if len(validationErrs) > 0 {
				for _, e := range validationErrs {
					fmt.Fprintln(cmd.ErrOrStderr(), e)
				}
				os.Exit(1)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", rec.VtagName)
			return nil
		},
	}
}

func newDimensionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a dimension by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.dimensions.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
