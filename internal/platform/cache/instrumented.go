package cache

import (
	"context"
	"time"
)

// Observer receives hit/miss/error signals per keyspace.
type Observer interface {
	ObserveCacheHit(keyspace string)
	ObserveCacheMiss(keyspace string)
	ObserveCacheError(keyspace, op string)
}

type instrumented struct {
	next     Cache
	observer Observer
}

// Instrument decorates c with hit/miss accounting. A nil observer returns c unchanged.
func Instrument(c Cache, observer Observer) Cache {
	if observer == nil {
		return c
	}
	return &instrumented{next: c, observer: observer}
}

func (i *instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	val, found, err := i.next.Get(ctx, key)
	switch {
	case err != nil:
		i.observer.ObserveCacheError(Keyspace(key), "get")
	case found:
		i.observer.ObserveCacheHit(Keyspace(key))
	default:
		i.observer.ObserveCacheMiss(Keyspace(key))
	}
	return val, found, err
}

func (i *instrumented) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	err := i.next.Set(ctx, key, value, ttl)
	if err != nil {
		i.observer.ObserveCacheError(Keyspace(key), "set")
	}
	return err
}

func (i *instrumented) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := i.next.SetNX(ctx, key, value, ttl)
	if err != nil {
		i.observer.ObserveCacheError(Keyspace(key), "setnx")
	}
	return ok, err
}

func (i *instrumented) Delete(ctx context.Context, keys ...string) error {
	err := i.next.Delete(ctx, keys...)
	if err != nil && len(keys) > 0 {
		i.observer.ObserveCacheError(Keyspace(keys[0]), "delete")
	}
	return err
}
