// cache.go — LRU-кэш политик хранения с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goartstore/retention-module/internal/domain/model"
)

// PolicyCache — LRU-кэш политик по id с автоматическим TTL.
// Кэш per-instance: при нескольких экземплярах устаревание ограничено TTL.
type PolicyCache struct {
	cache *expirable.LRU[string, *model.RetentionPolicy]
}

// NewPolicyCache создаёт кэш с указанным максимальным размером и TTL.
func NewPolicyCache(maxSize int, ttl time.Duration) *PolicyCache {
	return &PolicyCache{cache: expirable.NewLRU[string, *model.RetentionPolicy](maxSize, nil, ttl)}
}

// Get возвращает копию политики из кэша.
func (c *PolicyCache) Get(id string) (*model.RetentionPolicy, bool) {
	p, ok := c.cache.Get(id)
	if !ok {
		policyCacheMissesTotal.Inc()
		return nil, false
	}
	policyCacheHitsTotal.Inc()
	return clonePolicy(p), true
}

// Set добавляет или обновляет политику в кэше.
func (c *PolicyCache) Set(p *model.RetentionPolicy) {
	c.cache.Add(p.ID, clonePolicy(p))
}

// Invalidate удаляет политику из кэша.
func (c *PolicyCache) Invalidate(id string) {
	c.cache.Remove(id)
}

// Len возвращает количество записей в кэше.
func (c *PolicyCache) Len() int {
	return c.cache.Len()
}

func clonePolicy(p *model.RetentionPolicy) *model.RetentionPolicy {
	cp := *p
	cp.AppliesToCategories = slices.Clone(p.AppliesToCategories)
	return &cp
}
