// Package storefront owns the state behind the deals page: which category is
// selected, whether a search is active, and the product lists derived from
// the catalog for that selection.
//
// A Controller is the only writer of that state. Presentation code reads
// immutable View snapshots and reports user intents back through the
// controller's operations.
package storefront

import (
	"fmt"
	"strings"
	"time"

	"github.com/luansfranca/sopromocoes/models"
)

// Result caps. The page never paginates past the first page.
const (
	BrowseLimit     = 10
	SearchLimit     = 20
	SuggestionLimit = 5
	ReviewLimit     = 6
)

// DefaultQueryTimeout bounds every catalog query.
const DefaultQueryTimeout = 8 * time.Second

// Mode is the display state of the page.
type Mode string

const (
	// ModeBrowsing shows the featured and other lists.
	ModeBrowsing Mode = "browsing"
	// ModeSearching shows only search results.
	ModeSearching Mode = "searching"
)

// FailurePolicy decides what a failed fetch looks like to the page.
type FailurePolicy int

const (
	// Lenient shows failed lists as empty, indistinguishable from "no
	// matching products".
	Lenient FailurePolicy = iota
	// Strict also flags the view as unavailable so a surface can say so.
	Strict
)

func (p FailurePolicy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// ParseFailurePolicy reads "lenient" or "strict".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	default:
		return Lenient, fmt.Errorf("unknown failure policy %q", s)
	}
}

// View is a read-only snapshot of a controller's state. Slices are copies
// owned by the caller.
type View struct {
	Mode     Mode   `json:"mode"`
	Category string `json:"category,omitempty"`
	// Query is the last submitted search input.
	Query    string           `json:"query,omitempty"`
	DarkMode bool             `json:"dark_mode"`
	Featured []models.Product `json:"featured"`
	Other    []models.Product `json:"other"`
	// SearchResults is nil when no search is active. An empty, non-nil
	// slice means the search matched nothing.
	SearchResults []models.Product    `json:"search_results"`
	Suggestions   []models.Suggestion `json:"suggestions"`
	Reviews       []models.Review     `json:"reviews"`
	// Unavailable is only ever set under the Strict policy.
	Unavailable bool `json:"unavailable"`
}

// Searching reports whether search results take rendering priority.
func (v View) Searching() bool {
	return v.SearchResults != nil
}

type state struct {
	category string
	query    string
	darkMode bool

	featured      []models.Product
	other         []models.Product
	searchResults []models.Product
	suggestions   []models.Suggestion
	reviews       []models.Review

	browseFailed bool
	searchFailed bool
}

func (s *state) view(policy FailurePolicy) View {
	v := View{
		Mode:          ModeBrowsing,
		Category:      s.category,
		Query:         s.query,
		DarkMode:      s.darkMode,
		Featured:      cloneSlice(s.featured),
		Other:         cloneSlice(s.other),
		SearchResults: cloneSlice(s.searchResults),
		Suggestions:   cloneSlice(s.suggestions),
		Reviews:       cloneSlice(s.reviews),
	}
	if s.searchResults != nil {
		v.Mode = ModeSearching
	}
	if policy == Strict {
		if v.Mode == ModeSearching {
			v.Unavailable = s.searchFailed
		} else {
			v.Unavailable = s.browseFailed
		}
	}
	return v
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
