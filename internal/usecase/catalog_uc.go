// File: internal/usecase/catalog_uc.go
package usecase

import (
	"fmt"
	"strings"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
)

// Compile-time check
var _ OfferCatalog = (*offerCatalog)(nil)

// OfferCatalog is the read-only registry of purchasable offers. It is built
// once at startup and never mutated, so it needs no locking.
type OfferCatalog interface {
	// List returns offers in definition order.
	List() []*model.Offer
	Get(id string) (*model.Offer, error)
	Categories() []string
	IsCategory(name string) bool
}

type offerCatalog struct {
	offers     []*model.Offer
	byID       map[string]*model.Offer
	categories []string
	known      map[string]struct{}
}

// NewOfferCatalog validates offers against the category list: ids must be
// unique and fixed entitlements must name a known category.
func NewOfferCatalog(offers []*model.Offer, categories []string) (*offerCatalog, error) {
	if len(offers) == 0 || len(categories) == 0 {
		return nil, fmt.Errorf("catalog: offers and categories are required: %w", domain.ErrInvalidArgument)
	}
	c := &offerCatalog{
		byID:  make(map[string]*model.Offer, len(offers)),
		known: make(map[string]struct{}, len(categories)),
	}
	for _, name := range categories {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == string(model.ScopeAll) {
			return nil, fmt.Errorf("catalog: bad category %q: %w", name, domain.ErrInvalidArgument)
		}
		if _, dup := c.known[name]; dup {
			continue
		}
		c.known[name] = struct{}{}
		c.categories = append(c.categories, name)
	}
	for _, o := range offers {
		if o == nil {
			return nil, fmt.Errorf("catalog: nil offer: %w", domain.ErrInvalidArgument)
		}
		if _, dup := c.byID[o.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate offer id %q: %w", o.ID, domain.ErrAlreadyExists)
		}
		if e := o.Entitlement; e != "" && !e.IsAll() && !c.IsCategory(string(e)) {
			return nil, fmt.Errorf("catalog: offer %q entitles unknown category %q: %w", o.ID, e, domain.ErrInvalidCategory)
		}
		cp := *o
		c.byID[o.ID] = &cp
		c.offers = append(c.offers, &cp)
	}
	return c, nil
}

func (c *offerCatalog) List() []*model.Offer {
	out := make([]*model.Offer, len(c.offers))
	copy(out, c.offers)
	return out
}

func (c *offerCatalog) Get(id string) (*model.Offer, error) {
	o, ok := c.byID[id]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	return o, nil
}

func (c *offerCatalog) Categories() []string {
	return append([]string(nil), c.categories...)
}

func (c *offerCatalog) IsCategory(name string) bool {
	_, ok := c.known[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
