// Package parser turns catalog rows into models and normalises them.
package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/luansfranca/sopromocoes/catalog"
	"github.com/luansfranca/sopromocoes/models"
)

const avatarBaseURL = "https://api.dicebear.com/7.x/avataaars/svg"

// Category decodes a categories row.
func Category(r catalog.Row) (models.Category, error) {
	id, ok := toInt64(r["id"])
	if !ok {
		return models.Category{}, fmt.Errorf("category: bad id %v", r["id"])
	}
	return models.Category{
		ID:   id,
		Slug: toString(r["slug"]),
		Name: toString(r["name"]),
	}, nil
}

// Product decodes a products row and normalises it.
func Product(r catalog.Row) (models.Product, error) {
	p := models.Product{
		ID:                 toString(r["id"]),
		Title:              toString(r["title"]),
		Description:        toString(r["description"]),
		OriginalPrice:      toFloat(r["original_price"]),
		SalePrice:          toFloat(r["sale_price"]),
		DiscountPercentage: int(toFloat(r["discount_percentage"])),
		ImageURL:           toString(r["image_url"]),
		MarketplaceName:    toString(r["marketplace_name"]),
		MarketplaceIcon:    toString(r["marketplace_icon"]),
		ProductURL:         toString(r["product_url"]),
		ViewsCount:         int(toFloat(r["views_count"])),
		LikesCount:         int(toFloat(r["likes_count"])),
		IsFeatured:         toBool(r["is_featured"]),
		CreatedAt:          toTime(r["created_at"]),
	}
	if id, ok := toInt64(r["category_id"]); ok {
		p.CategoryID = &id
	}
	if err := ValidateProduct(&p); err != nil {
		return models.Product{}, err
	}
	NormalizeProduct(&p)
	return p, nil
}

// Products decodes rows, skipping the ones that fail validation. The number
// of skipped rows is returned so callers can log it.
func Products(rows []catalog.Row) ([]models.Product, int) {
	out := make([]models.Product, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		p, err := Product(r)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, p)
	}
	return out, skipped
}

// Suggestion decodes the narrow product projection used by the search box.
func Suggestion(r catalog.Row) models.Suggestion {
	return models.Suggestion{
		ID:              toString(r["id"]),
		Title:           strings.TrimSpace(toString(r["title"])),
		ImageURL:        toString(r["image_url"]),
		MarketplaceName: toString(r["marketplace_name"]),
	}
}

// Review decodes a user_reviews row, clamping the rating and deriving the
// avatar from the author name.
func Review(r catalog.Row) models.Review {
	name := strings.TrimSpace(toString(r["name"]))
	return models.Review{
		ID:        toString(r["id"]),
		Name:      name,
		Rating:    ClampRating(int(toFloat(r["rating"]))),
		Comment:   strings.TrimSpace(toString(r["comment"])),
		AvatarURL: AvatarURL(name),
		CreatedAt: toTime(r["created_at"]),
	}
}

// ValidateProduct ensures a product carries what a card needs to render.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("product missing id")
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product %s missing title", p.ID)
	}
	if p.SalePrice < 0 || p.OriginalPrice < 0 {
		return fmt.Errorf("product %s has a negative price", p.ID)
	}
	return nil
}

// NormalizeProduct trims text fields and fills a missing discount from the
// two prices.
func NormalizeProduct(p *models.Product) {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.MarketplaceName = strings.TrimSpace(p.MarketplaceName)
	if p.DiscountPercentage == 0 {
		p.DiscountPercentage = DiscountPercentage(p.OriginalPrice, p.SalePrice)
	}
}

// DiscountPercentage returns the rounded percentage saved by paying sale
// instead of original, or 0 when there is no saving.
func DiscountPercentage(original, sale float64) int {
	if original <= 0 || sale <= 0 || sale >= original {
		return 0
	}
	return int(math.Round((original - sale) / original * 100))
}

// ClampRating bounds a star rating to 0..5.
func ClampRating(rating int) int {
	switch {
	case rating < 0:
		return 0
	case rating > 5:
		return 5
	default:
		return rating
	}
}

// AvatarURL returns the generated avatar for a reviewer name.
func AvatarURL(name string) string {
	return avatarBaseURL + "?seed=" + url.QueryEscape(name)
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		return f
	default:
		return 0
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case json.Number:
		return b.String() != "0"
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	default:
		return false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}
