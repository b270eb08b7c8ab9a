// Package catalog answers which host owns a property and what deposit a
// stay requires. Listing management lives elsewhere; this is the read port.
package catalog

import (
	"context"
	"fmt"
	"sync"

	id "rentguard/pkg/domain"
	"rentguard/pkg/platform/sentinel"
)

type Listing struct {
	PropertyID    id.PropertyID `toml:"property_id"`
	HostID        id.HostID     `toml:"host_id"`
	DepositAmount int64         `toml:"deposit"`
}

type Catalog interface {
	Lookup(ctx context.Context, propertyID id.PropertyID) (Listing, error)
}

// InMemory is a fixed catalog loaded at startup.
type InMemory struct {
	mu       sync.RWMutex
	listings map[id.PropertyID]Listing
}

func NewInMemory(listings ...Listing) *InMemory {
	c := &InMemory{listings: make(map[id.PropertyID]Listing, len(listings))}
	for _, l := range listings {
		c.listings[l.PropertyID] = l
	}
	return c
}

// Put adds or replaces a listing.
func (c *InMemory) Put(l Listing) error {
	if l.PropertyID == "" || l.HostID == "" {
		return fmt.Errorf("listing needs property and host: %w", sentinel.ErrInvalidState)
	}
	if l.DepositAmount < 0 {
		return fmt.Errorf("listing %s: negative deposit: %w", l.PropertyID, sentinel.ErrInvalidState)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[l.PropertyID] = l
	return nil
}

func (c *InMemory) Lookup(_ context.Context, propertyID id.PropertyID) (Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.listings[propertyID]
	if !ok {
		return Listing{}, fmt.Errorf("property %s: %w", propertyID, sentinel.ErrNotFound)
	}
	return l, nil
}
