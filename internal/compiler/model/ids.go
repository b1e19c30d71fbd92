package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IDAllocator hands out content-addressed node ids of the form
// <kind>-<10 hex digits of sha256(key)>. A key seen again gets a
// monotonic -N suffix, so the same declarations in the same order always
// produce the same ids.
type IDAllocator struct {
	used map[string]int
}

// NewIDAllocator creates an empty allocator
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{used: make(map[string]int)}
}

// Next returns the id for key
func (a *IDAllocator) Next(kind, key string) string {
	base := HashID(kind, key)
	id := base
	for n := 2; a.used[id] > 0; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	a.used[id] = 1
	return id
}

// Reserve marks an externally supplied id as taken. It reports false when
// the id is already in use.
func (a *IDAllocator) Reserve(id string) bool {
	if a.used[id] > 0 {
		return false
	}
	a.used[id] = 1
	return true
}

// Release frees an id so a later Reserve can take it again
func (a *IDAllocator) Release(id string) {
	delete(a.used, id)
}

// HashID returns the unsuffixed id for key
func HashID(kind, key string) string {
	sum := sha256.Sum256([]byte(key))
	return kind + "-" + hex.EncodeToString(sum[:])[:10]
}
