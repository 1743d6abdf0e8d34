// Copyright © 2024 Kaleido, Inc.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache holds the in-process tier of the lookup caches.
package cache

import (
	"sync/atomic"

	cacheimpl "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"
)

// Cache is a bounded, concurrency-safe key/value cache
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, val V)
	Delete(key K)
	Len() int
	Capacity() int
	Clear()
}

type lruCache[K comparable, V any] struct {
	cache    atomic.Pointer[cacheimpl.Cache[K, V]]
	capacity int
}

// NewLRU creates an LRU cache holding at most capacity entries.
// Capacities below one are raised to one.
func NewLRU[K comparable, V any](capacity int) Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	c := &lruCache[K, V]{capacity: capacity}
	c.Clear()
	return c
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	return c.cache.Load().Get(key)
}

func (c *lruCache[K, V]) Set(key K, val V) {
	c.cache.Load().Set(key, val)
}

func (c *lruCache[K, V]) Delete(key K) {
	c.cache.Load().Delete(key)
}

func (c *lruCache[K, V]) Len() int {
	return c.cache.Load().Len()
}

// Clear swaps in an empty cache; the underlying library has no clear operation
func (c *lruCache[K, V]) Clear() {
	c.cache.Store(cacheimpl.New[K, V](cacheimpl.AsLRU[K, V](
		lru.WithCapacity(c.capacity),
	)))
}

func (c *lruCache[K, V]) Capacity() int {
	return c.capacity
}
