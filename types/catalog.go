package types

import (
	"strings"
	"time"
)

// Unit is the selling unit of a product.
type Unit string

const (
	UnitKilogram Unit = "kg"
	UnitBox      Unit = "box"
	UnitPiece    Unit = "piece"
)

// ParseUnit normalizes raw and reports whether it names a known unit.
// An empty value defaults to UnitPiece.
func ParseUnit(raw string) (Unit, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return UnitPiece, true
	}
	unit := Unit(raw)
	switch unit {
	case UnitKilogram, UnitBox, UnitPiece:
		return unit, true
	}
	return unit, false
}

// Product represents an item listed in the storefront catalog.
type Product struct {
	// ID is the unique identifier of the product (UUID), generated on create.
	ID string `json:"id" db:"id"`

	// OwnerID is the ID of the user who created the product. It is set once
	// at creation and never reassigned.
	OwnerID string `json:"owner_id" db:"owner_id"`

	// CategoryID references the category the product is listed under.
	CategoryID string `json:"category_id" db:"category_id"`

	// Name is the human-readable product name.
	Name string `json:"name" db:"name"`

	// Description is an optional long-form description.
	Description string `json:"description,omitempty" db:"description"`

	// Price is the unit price, in the store's currency.
	Price float64 `json:"price" db:"price"`

	// Unit is the unit the price applies to.
	Unit Unit `json:"unit" db:"unit"`

	// ImageURL is the cover image shown in listings.
	ImageURL string `json:"image_url,omitempty" db:"image_url"`

	// Images is the ordered gallery of image URLs.
	Images []string `json:"images" db:"images"`

	// CreatedAt is the timestamp at which the product was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the product.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MediaURLs returns every stored media URL referenced by the product.
func (p Product) MediaURLs() []string {
	urls := make([]string, 0, len(p.Images)+1)
	if p.ImageURL != "" {
		urls = append(urls, p.ImageURL)
	}
	for _, img := range p.Images {
		if img != "" && img != p.ImageURL {
			urls = append(urls, img)
		}
	}
	return urls
}

// Category groups products in the catalog.
type Category struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	ImageURL    string    `json:"image_url,omitempty" db:"image_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
