package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/luansfranca/sopromocoes/presenter"
	"github.com/luansfranca/sopromocoes/storefront"
)

var asJSON bool

var browseCmd = &cobra.Command{
	Use:   "browse [category]",
	Short: "Print the featured and other deals, optionally for one category",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := ""
		if len(args) == 1 {
			slug = args[0]
		}
		return withController(cmd, func(c *storefront.Controller) {
			c.SelectCategory(cmd.Context(), slug)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Print the deals whose title contains query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withController(cmd, func(c *storefront.Controller) {
			c.Search(cmd.Context(), query)
		})
	},
}

func init() {
	browseCmd.Flags().BoolVar(&asJSON, "json", false, "Print the page as JSON")
	searchCmd.Flags().BoolVar(&asJSON, "json", false, "Print the page as JSON")
}

func withController(cmd *cobra.Command, apply func(*storefront.Controller)) error {
	ctx := cmd.Context()
	gw, closeGateway, err := openGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer closeGateway()

	factory, err := newControllerFactory(gw, cfg, nil)
	if err != nil {
		return err
	}
	c, err := factory()
	if err != nil {
		return err
	}
	apply(c)

	page := presenter.Build(c.View())
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}
	return printPage(cmd.OutOrStdout(), page)
}

func printPage(out io.Writer, page presenter.Page) error {
	if page.Unavailable {
		fmt.Fprintln(out, "(catálogo indisponível no momento)")
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, section := range page.Sections {
		fmt.Fprintf(tw, "\n%s (%d)\n", section.Heading, len(section.Cards))
		for _, card := range section.Cards {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
				card.Title, card.SalePrice, card.Discount, card.MarketplaceName, card.ProductURL)
		}
	}
	return tw.Flush()
}
