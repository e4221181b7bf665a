package adapter

import (
	"context"

	"newspay-l402/internal/domain/model"
)

// ContentProvider serves the gated news items. Passing model.ScopeAll returns
// every category.
type ContentProvider interface {
	Categories() []string
	List(ctx context.Context, scope model.Scope) ([]model.NewsItem, error)
}
