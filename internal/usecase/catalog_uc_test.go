//go:build !integration

package usecase_test

import (
	"errors"
	"testing"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/usecase"
)

func TestOfferCatalog(t *testing.T) {
	cats := []string{"politics", "Sports ", "politics"}

	t.Run("should keep definition order and normalise categories", func(t *testing.T) {
		c, err := usecase.NewOfferCatalog(testOffers(), append(cats, "economy"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		list := c.List()
		if len(list) != 3 || list[0].ID != "one_category" || list[2].ID != "sports_week" {
			t.Fatalf("unexpected order: %v", list)
		}
		if got := c.Categories(); len(got) != 3 || got[1] != "sports" {
			t.Errorf("categories = %v", got)
		}
		if !c.IsCategory("SPORTS") || c.IsCategory("weather") {
			t.Error("IsCategory is not case-insensitive or accepts unknown names")
		}
	})

	t.Run("should return copies the caller cannot mutate", func(t *testing.T) {
		c, _ := usecase.NewOfferCatalog(testOffers(), cats)
		list := c.List()
		list[0] = nil
		if c.List()[0] == nil {
			t.Fatal("List leaked its backing slice")
		}
	})

	t.Run("should report unknown offers", func(t *testing.T) {
		c, _ := usecase.NewOfferCatalog(testOffers(), cats)
		if _, err := c.Get("lifetime"); !errors.Is(err, domain.ErrOfferNotFound) {
			t.Fatalf("expected ErrOfferNotFound, got %v", err)
		}
		o, err := c.Get("all_categories")
		if err != nil || !o.IsSubscription() {
			t.Fatalf("get: %+v, %v", o, err)
		}
	})

	t.Run("should reject inconsistent catalogs", func(t *testing.T) {
		dup := append(testOffers(), testOffers()[0])
		if _, err := usecase.NewOfferCatalog(dup, cats); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("duplicate id: got %v", err)
		}
		weather, _ := model.NewOffer("weather_day", "Weather", "", 10, "USD", "weather", 0, "", []string{"stripe"})
		if _, err := usecase.NewOfferCatalog([]*model.Offer{weather}, cats); !errors.Is(err, domain.ErrInvalidCategory) {
			t.Errorf("unknown entitlement: got %v", err)
		}
		if _, err := usecase.NewOfferCatalog(testOffers(), []string{"*"}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("wildcard category: got %v", err)
		}
		if _, err := usecase.NewOfferCatalog(nil, cats); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("empty catalog: got %v", err)
		}
	})
}
