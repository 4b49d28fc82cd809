package ussd

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/model"
)

// LanguageStore is the system of record for language preferences.
type LanguageStore interface {
	GetSessionLanguage(ctx context.Context, phone string) (model.Language, bool, error)
	SetSessionLanguage(ctx context.Context, phone string, lang model.Language) error
}

// LanguageCache is a bounded, expiring cache in front of LanguageStore.
// Losing it costs one store lookup per caller; store failures fall back to
// model.DefaultLanguage without being cached. It starts empty on every process start.
type LanguageCache struct {
	store LanguageStore
	lru   *expirable.LRU[string, model.Language]
}

// NewLanguageCache creates a cache holding up to size entries for ttl.
func NewLanguageCache(st LanguageStore, size int, ttl time.Duration) *LanguageCache {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LanguageCache{
		store: st,
		lru:   expirable.NewLRU[string, model.Language](size, nil, ttl),
	}
}

// Get returns the caller's language. Callers with no stored preference get
// the default, which is cached; a failed lookup is not.
func (c *LanguageCache) Get(ctx context.Context, phone string) model.Language {
	if lang, ok := c.lru.Get(phone); ok {
		return lang
	}
	lang, found, err := c.store.GetSessionLanguage(ctx, phone)
	if err != nil {
		zap.L().Warn("ussd: language lookup failed, using default",
			zap.String("phone", phone),
			zap.Error(err),
		)
		return model.DefaultLanguage
	}
	if !found {
		lang = model.DefaultLanguage
	}
	c.lru.Add(phone, lang)
	return lang
}

// Set persists the caller's language and caches it.
func (c *LanguageCache) Set(ctx context.Context, phone string, lang model.Language) error {
	if err := c.store.SetSessionLanguage(ctx, phone, lang); err != nil {
		c.lru.Remove(phone)
		return err
	}
	c.lru.Add(phone, lang)
	return nil
}

// Len reports the number of cached entries.
func (c *LanguageCache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached entry.
func (c *LanguageCache) Purge() {
	c.lru.Purge()
}
