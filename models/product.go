// Package models defines the catalog entities served by the storefront.
package models

import "time"

// Product is a promotional deal as stored in the products table.
type Product struct {
	ID                 string    `csv:"id" json:"id" yaml:"id"`
	Title              string    `csv:"title" json:"title" yaml:"title"`
	Description        string    `csv:"description" json:"description" yaml:"description"`
	OriginalPrice      float64   `csv:"original_price" json:"original_price" yaml:"original_price"`
	SalePrice          float64   `csv:"sale_price" json:"sale_price" yaml:"sale_price"`
	DiscountPercentage int       `csv:"discount_percentage" json:"discount_percentage" yaml:"discount_percentage"`
	ImageURL           string    `csv:"image_url" json:"image_url" yaml:"image_url"`
	MarketplaceName    string    `csv:"marketplace_name" json:"marketplace_name" yaml:"marketplace_name"`
	MarketplaceIcon    string    `csv:"marketplace_icon" json:"marketplace_icon" yaml:"marketplace_icon"`
	ProductURL         string    `csv:"product_url" json:"product_url" yaml:"product_url"`
	ViewsCount         int       `csv:"views_count" json:"views_count" yaml:"views_count"`
	LikesCount         int       `csv:"likes_count" json:"likes_count" yaml:"likes_count"`
	IsFeatured         bool      `csv:"is_featured" json:"is_featured" yaml:"is_featured"`
	CategoryID         *int64    `csv:"category_id" json:"category_id,omitempty" yaml:"category_id"`
	CreatedAt          time.Time `csv:"created_at" json:"created_at" yaml:"created_at"`
}

// Suggestion is the narrow product projection shown under the search box.
type Suggestion struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	ImageURL        string `json:"image_url"`
	MarketplaceName string `json:"marketplace_name"`
}

// Review is a visitor testimonial shown in the footer.
type Review struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Rating    int       `json:"rating" yaml:"rating"`
	Comment   string    `json:"comment" yaml:"comment"`
	AvatarURL string    `json:"avatar_url" yaml:"-"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Selection is the part of a visitor's state worth persisting between
// requests: everything else is derived from the catalog.
type Selection struct {
	Category string `json:"category,omitempty"`
	Query    string `json:"query,omitempty"`
	DarkMode bool   `json:"dark_mode"`
}
