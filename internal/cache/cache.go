// Package cache holds the read-mostly derived facts the notifier
// recomputes out-of-band: the sold-out announcement and the featured
// speaker. A miss means "no data yet", never an error.
package cache

import (
	gocache "github.com/patrickmn/go-cache"
)

// Well-known cache keys.
const (
	AnnouncementKey    = "announcement"
	FeaturedSpeakerKey = "featured_speaker"
)

// Cache is a small wrapper around an in-process key/value cache.
type Cache struct {
	c *gocache.Cache
}

// New returns an empty cache. Entries never expire; the notifier replaces
// them on each recomputation.
func New() *Cache {
	return &Cache{c: gocache.New(gocache.NoExpiration, 0)}
}

// Announcement returns the current announcement, if any.
func (c *Cache) Announcement() (string, bool) {
	return c.get(AnnouncementKey)
}

// SetAnnouncement replaces the announcement.
func (c *Cache) SetAnnouncement(msg string) {
	c.c.Set(AnnouncementKey, msg, gocache.NoExpiration)
}

// FeaturedSpeaker returns the current featured-speaker text, if any.
func (c *Cache) FeaturedSpeaker() (string, bool) {
	return c.get(FeaturedSpeakerKey)
}

// SetFeaturedSpeaker replaces the featured-speaker text.
func (c *Cache) SetFeaturedSpeaker(msg string) {
	c.c.Set(FeaturedSpeakerKey, msg, gocache.NoExpiration)
}

func (c *Cache) get(key string) (string, bool) {
	v, ok := c.c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
