package content

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
)

var _ adapter.ContentProvider = (*MockNews)(nil)

// MockNews generates a fixed set of fake headlines per category at startup.
// A seed of 0 picks a random one.
type MockNews struct {
	categories []string
	items      map[string][]model.NewsItem
}

func NewMockNews(categories []string, perCategory int, seed int64, now time.Time) *MockNews {
	faker := gofakeit.New(seed)
	m := &MockNews{
		categories: append([]string(nil), categories...),
		items:      make(map[string][]model.NewsItem, len(categories)),
	}
	for _, c := range m.categories {
		list := make([]model.NewsItem, 0, perCategory)
		for i := 0; i < perCategory; i++ {
			list = append(list, model.NewsItem{
				Timestamp:   now.Add(-time.Duration(faker.Number(1, 72*60)) * time.Minute).UTC().Truncate(time.Second),
				Title:       headline(faker, c),
				Description: faker.Paragraph(1, 3, 12, " "),
				Category:    c,
			})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.After(list[j].Timestamp) })
		m.items[c] = list
	}
	return m
}

func headline(f *gofakeit.Faker, category string) string {
	s := f.Sentence(f.Number(5, 9))
	return strings.ToUpper(category[:1]) + category[1:] + ": " + strings.TrimSuffix(s, ".")
}

func (m *MockNews) Categories() []string {
	return append([]string(nil), m.categories...)
}

// List returns items newest first; ScopeAll interleaves every category.
func (m *MockNews) List(_ context.Context, scope model.Scope) ([]model.NewsItem, error) {
	if scope.IsAll() {
		var out []model.NewsItem
		for _, c := range m.categories {
			out = append(out, m.items[c]...)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
		return out, nil
	}
	list, ok := m.items[string(scope)]
	if !ok {
		return nil, domain.ErrInvalidCategory
	}
	return append([]model.NewsItem(nil), list...), nil
}
