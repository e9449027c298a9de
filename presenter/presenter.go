// Package presenter turns a storefront.View into the page model a surface
// renders: headings, formatted prices and share links.
package presenter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/luansfranca/sopromocoes/models"
	"github.com/luansfranca/sopromocoes/storefront"
)

const (
	HeadingSearch   = "Resultados da Pesquisa"
	HeadingFeatured = "Ofertas em Destaque"
	HeadingOther    = "Outras Ofertas"
)

// Theme names for the display-mode flag.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

const shareTextPrefix = "Confira esta oferta incrível: "

// Page is everything a surface needs to draw the current view.
type Page struct {
	Theme       string              `json:"theme"`
	Mode        storefront.Mode     `json:"mode"`
	Query       string              `json:"query,omitempty"`
	Sections    []Section           `json:"sections"`
	Suggestions []models.Suggestion `json:"suggestions"`
	Reviews     []models.Review     `json:"reviews"`
	Unavailable bool                `json:"unavailable,omitempty"`
}

// Section is one titled product list.
type Section struct {
	Heading string `json:"heading"`
	Cards   []Card `json:"cards"`
}

// Card is a product ready for display.
type Card struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	ImageURL        string `json:"image_url"`
	MarketplaceName string `json:"marketplace_name"`
	MarketplaceIcon string `json:"marketplace_icon,omitempty"`
	ProductURL      string `json:"product_url"`
	OriginalPrice   string `json:"original_price"`
	SalePrice       string `json:"sale_price"`
	Discount        string `json:"discount"`
	Views           int    `json:"views"`
	Likes           int    `json:"likes"`
	Share           Share  `json:"share"`
}

// Share holds the outbound share links of a card.
type Share struct {
	WhatsApp  string `json:"whatsapp"`
	Twitter   string `json:"twitter"`
	Instagram string `json:"instagram"`
}

// Build projects v into a page. Search results, when present, replace the
// browse sections entirely.
func Build(v storefront.View) Page {
	p := Page{
		Theme:       Theme(v.DarkMode),
		Mode:        v.Mode,
		Query:       v.Query,
		Suggestions: v.Suggestions,
		Reviews:     v.Reviews,
		Unavailable: v.Unavailable,
	}
	if p.Suggestions == nil {
		p.Suggestions = []models.Suggestion{}
	}
	if p.Reviews == nil {
		p.Reviews = []models.Review{}
	}

	if v.Searching() {
		p.Sections = []Section{{Heading: HeadingSearch, Cards: Cards(v.SearchResults)}}
		return p
	}
	p.Sections = []Section{
		{Heading: Heading(HeadingFeatured, v.Category), Cards: Cards(v.Featured)},
		{Heading: Heading(HeadingOther, v.Category), Cards: Cards(v.Other)},
	}
	return p
}

// Heading appends the category slug to a browse heading.
func Heading(base, category string) string {
	if category == "" {
		return base
	}
	return base + " - " + category
}

// Theme names the display mode.
func Theme(dark bool) string {
	if dark {
		return ThemeDark
	}
	return ThemeLight
}

// Cards converts products, preserving order. The result is never nil.
func Cards(products []models.Product) []Card {
	cards := make([]Card, 0, len(products))
	for _, p := range products {
		cards = append(cards, NewCard(p))
	}
	return cards
}

func NewCard(p models.Product) Card {
	return Card{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		ImageURL:        p.ImageURL,
		MarketplaceName: p.MarketplaceName,
		MarketplaceIcon: p.MarketplaceIcon,
		ProductURL:      p.ProductURL,
		OriginalPrice:   Price(p.OriginalPrice),
		SalePrice:       Price(p.SalePrice),
		Discount:        Discount(p.DiscountPercentage),
		Views:           p.ViewsCount,
		Likes:           p.LikesCount,
		Share:           ShareLinks(p),
	}
}

// Price formats an amount in reais with two decimals.
func Price(v float64) string {
	return fmt.Sprintf("R$ %.2f", v)
}

// Discount formats the discount badge.
func Discount(pct int) string {
	return fmt.Sprintf("-%d%%", pct)
}

// ShareLinks builds the whatsapp, twitter and instagram links for p.
func ShareLinks(p models.Product) Share {
	text := encodeComponent(shareTextPrefix + p.Title + "\n" + p.ProductURL)
	return Share{
		WhatsApp:  "https://wa.me/?text=" + text,
		Twitter:   "https://twitter.com/intent/tweet?text=" + text,
		Instagram: "https://instagram.com/share?url=" + encodeComponent(p.ProductURL),
	}
}

// componentUnescaper undoes the escapes url.QueryEscape applies to spaces and
// to the marks browsers' encodeURIComponent leaves alone.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeComponent escapes s for a query value the way encodeURIComponent
// does, so shared links match the ones the web page produces.
func encodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
