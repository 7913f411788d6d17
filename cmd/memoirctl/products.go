package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"memoir/internal/products"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Inspect product definitions",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in products",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := products.NewRegistry()
		if err != nil {
			return err
		}
		if dir := os.Getenv("PRODUCTS_DIR"); dir != "" {
			if err := registry.LoadDir(dir); err != nil {
				return err
			}
		}

		for _, p := range registry.ListProducts() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s@%s\t%s\t%d projection(s)\n", p.ID, p.Version, p.Name, len(p.Projections))
		}
		return nil
	},
}

var productsValidateCmd = &cobra.Command{
	Use:   "validate <file.yaml>...",
	Short: "Validate product definition files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			// A fresh registry per file so embedded ids do not mask duplicates
			registry, err := products.NewRegistry()
			if err != nil {
				return err
			}
			if err := registry.Load(data); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
		}
		return nil
	},
}

func init() {
	productsCmd.AddCommand(productsListCmd, productsValidateCmd)
}
