package goGate

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MrEthical07/goGate/session"
)

// sessionCache keeps recently resolved sessions in process for
// Session.CookieCacheMaxAge so most requests skip Redis. Entries are keyed by
// session ID and still carry the secret hash, so a cache hit authenticates
// exactly like a store read. A nil *sessionCache is a disabled cache.
//
// The cache is per process: revocation on another instance is visible here
// only once the entry ages out.
//
// Every removal advances a purge epoch. A reader that fetched a record from
// the store caches it with addIfCurrent, which refuses when a removal ran
// since the read began, so a purged role or session is never re-cached.
type sessionCache struct {
	lru *expirable.LRU[string, *session.Session]

	mu     sync.Mutex
	purges uint64
}

func newSessionCache(size int, ttl time.Duration) *sessionCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &sessionCache{
		lru: expirable.NewLRU[string, *session.Session](size, nil, ttl),
	}
}

func (c *sessionCache) get(sessionID string) (*session.Session, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(sessionID)
}

func (c *sessionCache) add(sess *session.Session) {
	if c == nil || sess == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(sess.SessionID, sess.Clone())
}

// epoch returns the current purge epoch for a later addIfCurrent.
func (c *sessionCache) epoch() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purges
}

// addIfCurrent caches sess unless a removal happened after epoch was taken.
func (c *sessionCache) addIfCurrent(sess *session.Session, epoch uint64) bool {
	if c == nil || sess == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.purges != epoch {
		return false
	}
	c.lru.Add(sess.SessionID, sess.Clone())
	return true
}

func (c *sessionCache) remove(sessionIDs ...string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purges++
	for _, id := range sessionIDs {
		c.lru.Remove(id)
	}
}

// removeUser drops every cached session of userID. It walks the whole
// cache and is meant for rare operations such as role changes.
func (c *sessionCache) removeUser(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purges++
	for _, sess := range c.lru.Values() {
		if sess.UserID == userID {
			c.lru.Remove(sess.SessionID)
		}
	}
}

func (c *sessionCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
