// kerimesh - KERI identity and group-chat consensus engine
// Copyright (C) 2025 kerimesh contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package kv

import (
	"context"

	"github.com/cockroachdb/pebble"
)

// Pebble is an embedded-LSM Backend: one keyspace, ordered iteration for
// prefix scans, and transactional batch writes.
type Pebble struct {
	db *pebble.DB
}

// NewPebble opens (or creates) a pebble database rooted at dir.
func NewPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	if cerr := closer.Close(); cerr != nil {
		return nil, false, cerr
	}
	return out, true, nil
}

func (p *Pebble) Put(_ context.Context, key string, value []byte) error {
	return p.db.Set([]byte(key), value, pebble.Sync)
}

func (p *Pebble) Del(_ context.Context, key string) error {
	return p.db.Delete([]byte(key), pebble.Sync)
}

// prefixUpperBound returns the smallest key greater than every key with
// prefix, giving a half-open [prefix, upperBound) iteration range.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff bytes: unbounded above
}

func (p *Pebble) List(_ context.Context, prefix string, opts ListOptions) ([]Entry, error) {
	lower := []byte(prefix)
	upper := prefixUpperBound(lower)

	iterOpts := &pebble.IterOptions{LowerBound: lower, UpperBound: upper}
	it, err := p.db.NewIter(iterOpts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var entries []Entry
	for it.First(); it.Valid(); it.Next() {
		if opts.Limit > 0 && len(entries) >= opts.Limit {
			break
		}
		e := Entry{Key: string(it.Key())}
		if !opts.KeysOnly {
			v, err := it.ValueAndErr()
			if err != nil {
				return nil, err
			}
			cp := make([]byte, len(v))
			copy(cp, v)
			e.Value = cp
		}
		entries = append(entries, e)
	}
	return entries, it.Error()
}

// Batch applies ops atomically via a pebble.Batch.
func (p *Pebble) Batch(_ context.Context, ops []Op) error {
	b := p.db.NewBatch()
	defer b.Close()
	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpPut:
			err = b.Set([]byte(op.Key), op.Value, nil)
		case OpDel:
			err = b.Delete([]byte(op.Key), nil)
		}
		if err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (p *Pebble) Close() error { return p.db.Close() }
