// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package stringutils provides cached string normalization used for catalog
// title matching.
package stringutils

import (
	"strings"
	"time"
	"unicode"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const defaultNormalizerTTL = 5 * time.Minute

// TransformFunc is a function that transforms K to V.
type TransformFunc[K, V any] func(K) V

// Normalizer caches transformed results so we do not repeatedly transform the
// same inputs. Catalog matching normalizes every library title on every
// lookup, so the cache matters.
type Normalizer[K comparable, V any] struct {
	cache     *ttlcache.Cache[K, V]
	transform TransformFunc[K, V]
}

// NewNormalizer returns a normalizer with the provided TTL and transform
// function. The transform function is only called once per unique key until
// the TTL expires.
func NewNormalizer[K comparable, V any](ttl time.Duration, transform TransformFunc[K, V]) *Normalizer[K, V] {
	cache := ttlcache.New(ttlcache.Options[K, V]{}.
		SetDefaultTTL(ttl))
	return &Normalizer[K, V]{
		cache:     cache,
		transform: transform,
	}
}

// Normalize returns the transformed value, using the cache to avoid repeated
// transforms.
func (n *Normalizer[K, V]) Normalize(key K) V {
	if cached, ok := n.cache.Get(key); ok {
		return cached
	}

	transformed := n.transform(key)
	n.cache.Set(key, transformed, ttlcache.DefaultTTL)
	return transformed
}

// Clear removes a cached entry.
func (n *Normalizer[K, V]) Clear(key K) {
	n.cache.Delete(key)
}

var titleNormalizer = NewNormalizer(defaultNormalizerTTL, normalizeTitleInner)

// normalizeTitleInner folds a title to a canonical matching form. CJK text
// passes through NFKD untouched; latin titles lose diacritics so that
// "Amélie" and "Amelie" compare equal.
func normalizeTitleInner(s string) string {
	// transform.Chain is not safe for concurrent reuse; build it per call and
	// rely on the cache to keep this off the hot path.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	folded = strings.ToLower(strings.TrimSpace(folded))
	folded = strings.ReplaceAll(folded, "'", "")
	folded = strings.ReplaceAll(folded, "'", "")
	folded = strings.ReplaceAll(folded, ":", "")

	// Collapse runs of whitespace.
	return strings.Join(strings.Fields(folded), " ")
}

// NormalizeTitle applies cached title normalization:
//   - Unicode NFKD with diacritics removed
//   - Lowercase, trimmed
//   - Apostrophes and colons stripped
//   - Whitespace collapsed
func NormalizeTitle(s string) string {
	return titleNormalizer.Normalize(s)
}
