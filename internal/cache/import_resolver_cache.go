package cache

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	defaultHouseholdTTL = 10 * time.Minute
	defaultClientTTL    = 10 * time.Minute
	defaultAccountTTL   = 10 * time.Minute
)

// ImportResolverCache stores parent-reference lookups made while
// processing import rows. Entries are invalidated when an undo run
// rewrites the underlying records.
type ImportResolverCache interface {
	GetHousehold(orgID snowflake.ID, name string) (snowflake.ID, bool)
	SetHousehold(orgID snowflake.ID, name string, id snowflake.ID)
	GetClient(orgID snowflake.ID, email string) (snowflake.ID, bool)
	SetClient(orgID snowflake.ID, email string, id snowflake.ID)
	GetAccount(orgID snowflake.ID, accountNumber string) (snowflake.ID, bool)
	SetAccount(orgID snowflake.ID, accountNumber string, id snowflake.ID)
	Reset()
}

type importResolverCache struct {
	households Cache[string, snowflake.ID]
	clients    Cache[string, snowflake.ID]
	accounts   Cache[string, snowflake.ID]
}

// NewImportResolverCache returns an in-memory cache tuned for bulk imports.
func NewImportResolverCache() ImportResolverCache {
	return &importResolverCache{
		households: NewTTLCache[string, snowflake.ID](),
		clients:    NewTTLCache[string, snowflake.ID](),
		accounts:   NewTTLCache[string, snowflake.ID](),
	}
}

func (c *importResolverCache) GetHousehold(orgID snowflake.ID, name string) (snowflake.ID, bool) {
	return c.households.Get(cacheKey(orgID.String(), name))
}

func (c *importResolverCache) SetHousehold(orgID snowflake.ID, name string, id snowflake.ID) {
	if id == 0 {
		return
	}
	c.households.Set(cacheKey(orgID.String(), name), id, defaultHouseholdTTL)
}

func (c *importResolverCache) GetClient(orgID snowflake.ID, email string) (snowflake.ID, bool) {
	return c.clients.Get(cacheKey(orgID.String(), email))
}

func (c *importResolverCache) SetClient(orgID snowflake.ID, email string, id snowflake.ID) {
	if id == 0 {
		return
	}
	c.clients.Set(cacheKey(orgID.String(), email), id, defaultClientTTL)
}

func (c *importResolverCache) GetAccount(orgID snowflake.ID, accountNumber string) (snowflake.ID, bool) {
	return c.accounts.Get(cacheKey(orgID.String(), accountNumber))
}

func (c *importResolverCache) SetAccount(orgID snowflake.ID, accountNumber string, id snowflake.ID) {
	if id == 0 {
		return
	}
	c.accounts.Set(cacheKey(orgID.String(), accountNumber), id, defaultAccountTTL)
}

// Reset drops every cached lookup. Undo rewrites records out from under
// the cache, so the engine clears it after each run.
func (c *importResolverCache) Reset() {
	c.households.Purge()
	c.clients.Purge()
	c.accounts.Purge()
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, "|")
}
