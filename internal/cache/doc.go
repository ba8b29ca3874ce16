// Package cache provides a small generic LRU cache used to keep compiled
// kernel modules across Prepare calls.
//
//	c := cache.New[[32]byte, []uint32](64)
//	c.Set(key, words)
//	words, ok := c.Get(key)
package cache
