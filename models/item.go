package models

import (
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidCategory = errors.New("invalid category")

// Category classifies a tracked item. Fixed at creation, never mutated.
type Category string

const (
	CategoryMovie Category = "Movie"
	CategorySerie Category = "Serie"
	CategoryAnime Category = "Anime"
	CategoryManga Category = "Manga"
)

// Status is the user-facing progress state of an item.
type Status string

const (
	StatusOngoing Status = "Ongoing"
	StatusDone    Status = "Done"
	StatusPlanned Status = "Planned"
)

const (
	DefaultCategory = CategoryAnime
	DefaultStatus   = StatusPlanned

	// DefaultStep is the default increment applied when advancing an item's value.
	DefaultStep = 1
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{CategoryMovie, CategorySerie, CategoryAnime, CategoryManga}
}

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{StatusOngoing, StatusDone, StatusPlanned}
}

// Valid reports whether c is one of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryMovie, CategorySerie, CategoryAnime, CategoryManga:
		return true
	}
	return false
}

// Valid reports whether s is one of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusOngoing, StatusDone, StatusPlanned:
		return true
	}
	return false
}

// FlexFloat is a float64 that tolerates sloppy JSON input: numeric strings
// are parsed, anything non-numeric collapses to 0 instead of failing the
// whole document decode.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*f = 0
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// Item is one tracked media entry.
type Item struct {
	ID         string    `json:"id"`
	Category   Category  `json:"category"`
	Media      *Media    `json:"media"`
	Status     Status    `json:"status"`
	IsFavorite bool      `json:"isFavorite"`
	Step       FlexFloat `json:"step,omitempty"`
	Value      FlexFloat `json:"value"`
	Season     *int      `json:"season,omitempty"`
	Timer      *string   `json:"timer,omitempty"`
	Link       string    `json:"link,omitempty"`
	// LastUpdated is the epoch-millis timestamp of the last remote metadata
	// refresh for this item, nil until the first refresh.
	LastUpdated *int64 `json:"lastUpdated"`
}

// NewItem creates an empty item for the given category with a fresh id.
func NewItem(category Category) (Item, error) {
	if !category.Valid() {
		return Item{}, ErrInvalidCategory
	}
	return Item{
		ID:       uuid.NewString(),
		Category: category,
		Media:    nil,
		Status:   DefaultStatus,
		Step:     DefaultStep,
		Value:    0,
	}, nil
}

// IsVideo reports whether the item belongs to a video category.
func (i Item) IsVideo() bool {
	return i.Category == CategoryMovie || i.Category == CategorySerie || i.Category == CategoryAnime
}

// HasSeason reports whether the item's category carries a season counter.
func (i Item) HasSeason() bool {
	return i.Category == CategorySerie || i.Category == CategoryAnime
}

// SortItems orders items favorites-first while preserving the relative order
// inside each group.
func SortItems(items []Item) {
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].IsFavorite && !items[b].IsFavorite
	})
}
