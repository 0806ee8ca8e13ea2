// Package config holds open-time options for an Image: the band-cache
// memory budget and the per-chunk compressed-size guard.
//
// Follows the teacher's memlimit.go pattern: an environment variable
// provides a default, overridable in code, with a hard-coded fallback
// if neither is set.
package config

import (
	"math"
	"os"
	"strconv"
)

const (
	// DefaultCacheBudget bounds the band/chunk cache (§4.G, §3 "Cache entry").
	DefaultCacheBudget int64 = 256 * 1024 * 1024

	// DefaultMaxCompressedChunk is the platform-independent replacement
	// for the original's SSIZE_MAX guard (see §9 Open Question): no
	// realistic UDIF/sparse chunk compresses to anywhere near this, and
	// bounding it defends the decoders against corrupt or hostile chunk
	// tables that claim an enormous compressed_length.
	DefaultMaxCompressedChunk int64 = 1 << 30 // 1 GiB
)

// Config collects the options affecting Image.Open/OpenSparseBundle.
type Config struct {
	CacheBudget        int64
	MaxCompressedChunk int64
}

// Option mutates a Config; returned by the With* functions below.
type Option func(*Config)

// WithCacheBudget overrides the band/chunk cache's memory budget, in bytes.
func WithCacheBudget(bytes int64) Option {
	return func(c *Config) { c.CacheBudget = bytes }
}

// WithMaxCompressedChunk overrides the per-chunk compressed-size cap, in bytes.
func WithMaxCompressedChunk(bytes int64) Option {
	return func(c *Config) { c.MaxCompressedChunk = bytes }
}

// New builds a Config from the environment (MODI_CACHE_MB, mirroring
// the teacher's BEGB variable) and then applies opts on top.
func New(opts ...Option) Config {
	c := Config{
		CacheBudget:        cacheBudgetFromEnv(),
		MaxCompressedChunk: DefaultMaxCompressedChunk,
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func cacheBudgetFromEnv() int64 {
	if e := os.Getenv("MODI_CACHE_MB"); e != "" {
		f, err := strconv.ParseFloat(e, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			panic("malformed MODI_CACHE_MB environment variable, should be a number of megabytes: " + e)
		}
		return int64(f * 1024 * 1024)
	}
	return DefaultCacheBudget
}
