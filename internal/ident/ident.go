// Package ident generates node/tree/session identifiers and creation timestamps.
package ident

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	NodePrefix = "node"
	TreePrefix = "tree"
)

var enc = base32.StdEncoding.WithPadding(base32.NoPadding)

// newRandomID returns prefix-<suffix> where suffix is 8 chars of base32 (lowercase, no padding).
func newRandomID(prefix string) (string, error) {
	var b [5]byte // 40 bits -> 8 base32 chars
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return prefix + "-" + strings.ToLower(enc.EncodeToString(b[:])), nil
}

// Generator hands out ids. The zero value is not usable; use NewGenerator.
type Generator interface {
	NodeID() string
	TreeID() string
	SessionID() string
}

type randomGenerator struct {
	mu  sync.Mutex
	seq uint64
}

func NewGenerator() Generator { return &randomGenerator{} }

func (g *randomGenerator) NodeID() string { return g.id(NodePrefix) }
func (g *randomGenerator) TreeID() string { return g.id(TreePrefix) }

func (g *randomGenerator) SessionID() string { return uuid.NewString() }

func (g *randomGenerator) id(prefix string) string {
	id, err := newRandomID(prefix)
	if err == nil {
		return id
	}
	// crypto/rand failing is close to impossible; keep ids unique within the process anyway.
	g.mu.Lock()
	g.seq++
	n := g.seq
	g.mu.Unlock()
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), n)
}

// Clock yields creation timestamps in Unix milliseconds.
type Clock interface {
	Now() int64
}

// MonotonicClock never returns the same value twice and never goes backwards,
// so "most recently visited" comparisons are unambiguous within a process.
type MonotonicClock struct {
	mu   sync.Mutex
	last int64
	wall func() time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{wall: time.Now}
}

func (c *MonotonicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.wall().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// Observe raises the floor so restored timestamps stay below newly created ones.
func (c *MonotonicClock) Observe(ts int64) {
	c.mu.Lock()
	if ts > c.last {
		c.last = ts
	}
	c.mu.Unlock()
}
