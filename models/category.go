package models

// Category groups products. Categories are reference data and never change
// while the page is open.
type Category struct {
	ID   int64  `json:"id" yaml:"id"`
	Slug string `json:"slug" yaml:"slug"`
	Name string `json:"name" yaml:"name"`
}

// DefaultCategories lists the chooser entries in display order. Their ids are
// unknown until resolved against the catalog.
var DefaultCategories = []Category{
	{Slug: "smartphone", Name: "Smartphone"},
	{Slug: "eletronicos", Name: "Eletrônicos"},
	{Slug: "games", Name: "Games"},
	{Slug: "roupas", Name: "Roupas"},
	{Slug: "acessorios", Name: "Acessórios"},
	{Slug: "notebooks", Name: "Notebooks"},
	{Slug: "cameras", Name: "Câmeras"},
	{Slug: "livros", Name: "Livros"},
	{Slug: "saude-beleza", Name: "Saúde e Beleza"},
}
