package catalog

// Table names of the hosted catalog.
const (
	TableCategories = "categories"
	TableProducts   = "products"
	TableReviews    = "user_reviews"
)

var postgresSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`,
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		original_price NUMERIC(10,2) NOT NULL DEFAULT 0,
		sale_price NUMERIC(10,2) NOT NULL DEFAULT 0,
		discount_percentage INTEGER NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT '',
		marketplace_name TEXT NOT NULL DEFAULT '',
		marketplace_icon TEXT NOT NULL DEFAULT '',
		product_url TEXT NOT NULL DEFAULT '',
		views_count INTEGER NOT NULL DEFAULT 0,
		likes_count INTEGER NOT NULL DEFAULT 0,
		is_featured BOOLEAN NOT NULL DEFAULT false,
		category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_featured_created ON products(is_featured, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
	`CREATE TABLE IF NOT EXISTS user_reviews (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 0 AND 5),
		comment TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		original_price REAL NOT NULL DEFAULT 0,
		sale_price REAL NOT NULL DEFAULT 0,
		discount_percentage INTEGER NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT '',
		marketplace_name TEXT NOT NULL DEFAULT '',
		marketplace_icon TEXT NOT NULL DEFAULT '',
		product_url TEXT NOT NULL DEFAULT '',
		views_count INTEGER NOT NULL DEFAULT 0,
		likes_count INTEGER NOT NULL DEFAULT 0,
		is_featured INTEGER NOT NULL DEFAULT 0,
		category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_featured_created ON products(is_featured, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
	`CREATE TABLE IF NOT EXISTS user_reviews (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 0 AND 5),
		comment TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`,
}
