// Package projection builds local read models from store data.
// It does not talk to the store itself and emits nothing.
package projection

import (
	"sync"

	"mentorlink/domain"
)

// ProfileCache maps user ids to their last-known display profile and
// resolved company name. Entries are populated lazily and never evicted;
// the cache lives as long as its owning sync engine (one screen session).
//
// For company names, "absent" and "known empty" are distinct states:
// absent triggers a fetch, an empty string means fetched-and-none-found
// and must not be refetched.
type ProfileCache struct {
	mu        sync.RWMutex
	profiles  map[string]domain.Profile
	companies map[string]string
}

func NewProfileCache() *ProfileCache {
	return &ProfileCache{
		profiles:  make(map[string]domain.Profile),
		companies: make(map[string]string),
	}
}

func (c *ProfileCache) Get(userID string) (domain.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	profile, ok := c.profiles[userID]
	return profile, ok
}

func (c *ProfileCache) Put(userID string, profile domain.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[userID] = profile
}

func (c *ProfileCache) CompanyName(userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.companies[userID]
	return name, ok
}

func (c *ProfileCache) PutCompanyName(userID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.companies[userID] = name
}

// NeedsFetch reports whether either the profile or the company name of
// userID is still unknown.
func (c *ProfileCache) NeedsFetch(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, hasProfile := c.profiles[userID]
	_, hasCompany := c.companies[userID]
	return !hasProfile || !hasCompany
}
