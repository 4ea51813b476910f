// internal/catalog/domain.go
package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/assets"
)

// Item is a catalog record as persisted in the record store. Items are passed
// by value; a new state is always a new value.
type Item struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Language    string          `json:"language"`
	Category    string          `json:"category"`
	Publisher   string          `json:"publisher"`
	Image       assets.Ref      `json:"image"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Fields are the caller-editable parts of an item.
type Fields struct {
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Language    string          `json:"language"`
	Category    string          `json:"category"`
	Publisher   string          `json:"publisher"`
}

// Upload is an asset supplied with a create or update call.
type Upload struct {
	Data     []byte
	Filename string
}

func (u *Upload) present() bool {
	return u != nil && len(u.Data) > 0
}

// Fields returns the editable fields of the item.
func (it Item) Fields() Fields {
	return Fields{
		Title:       it.Title,
		Author:      it.Author,
		Price:       it.Price,
		Description: it.Description,
		Language:    it.Language,
		Category:    it.Category,
		Publisher:   it.Publisher,
	}
}

func (it Item) withFields(f Fields) Item {
	it.Title = f.Title
	it.Author = f.Author
	it.Price = f.Price
	it.Description = f.Description
	it.Language = f.Language
	it.Category = f.Category
	it.Publisher = f.Publisher
	return it
}

func (it Item) withImage(ref assets.Ref) Item {
	it.Image = ref
	return it
}

func newItem(f Fields) Item {
	return Item{}.withFields(f.normalized())
}

func (f Fields) normalized() Fields {
	f.Title = strings.TrimSpace(f.Title)
	f.Author = strings.TrimSpace(f.Author)
	return f
}

// Prices carry at most priceScale decimal places and stay below maxPrice,
// which is what every record store can hold exactly.
const priceScale = 2

var maxPrice = decimal.New(1, 10)

// Validate checks the fields a record cannot be saved without.
func (f Fields) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(f.Title) == "" {
		verr.add("title", "must not be empty")
	}
	if strings.TrimSpace(f.Author) == "" {
		verr.add("author", "must not be empty")
	}
	switch {
	case f.Price.IsNegative():
		verr.add("price", "must not be negative")
	case !f.Price.Equal(f.Price.Truncate(priceScale)):
		verr.add("price", "must not have more than 2 decimal places")
	case f.Price.GreaterThanOrEqual(maxPrice):
		verr.add("price", "must be less than 10000000000")
	}
	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}
