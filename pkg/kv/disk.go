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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// escapedChars are the reserved characters percent-encoded in a
// disk-backend path segment.
const escapedChars = `% \:*?"<>|`

func escapeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		if strings.ContainsRune(escapedChars, r) {
			fmt.Fprintf(&b, "%%%02X", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescapeSegment(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		if seg[i] == '%' && i+2 < len(seg) {
			var v int
			if _, err := fmt.Sscanf(seg[i+1:i+3], "%02X", &v); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(seg[i])
	}
	return b.String()
}

func keyToPath(root, key string) string {
	segs := strings.Split(key, "/")
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = escapeSegment(s)
	}
	return filepath.Join(root, filepath.Join(escaped...))
}

func pathToKey(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	for i, s := range segs {
		segs[i] = unescapeSegment(s)
	}
	return strings.Join(segs, "/"), nil
}

// PartialBatchError is returned by Disk.Batch when a sequential batch
// failed partway through: the prefix [0:Applied) of ops has been committed
// to disk, the rest has not. A caller expecting true
// atomicity must use Memory/Pebble/Postgres, or retry with idempotent
// content (the event store's duplicate detection makes a putEvent retry
// safe).
type PartialBatchError struct {
	Applied int
	Err     error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("disk batch: applied %d ops before failing: %v", e.Applied, e.Err)
}

func (e *PartialBatchError) Unwrap() error { return e.Err }

// Disk is a Backend that mirrors a `/`-split key to a file tree under
// Root, escaping reserved filesystem characters in each path segment.
// Batch application is sequential, not transactional.
type Disk struct {
	mu   sync.Mutex
	Root string
}

// NewDisk creates a disk-backed store rooted at dir, creating it if absent.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kv.Disk: create root: %w", err)
	}
	return &Disk{Root: dir}, nil
}

func (d *Disk) Get(_ context.Context, key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, err := os.ReadFile(keyToPath(d.Root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (d *Disk) Put(_ context.Context, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.putLocked(key, value)
}

func (d *Disk) putLocked(key string, value []byte) error {
	path := keyToPath(d.Root, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, value, 0o644)
}

func (d *Disk) Del(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delLocked(key)
}

func (d *Disk) delLocked(key string) error {
	err := os.Remove(keyToPath(d.Root, key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *Disk) List(_ context.Context, prefix string, opts ListOptions) ([]Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var keys []string
	err := filepath.Walk(d.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		key, err := pathToKey(d.Root, path)
		if err != nil {
			return err
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e := Entry{Key: k}
		if !opts.KeysOnly {
			data, err := os.ReadFile(keyToPath(d.Root, k))
			if err != nil {
				return nil, err
			}
			e.Value = data
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Batch applies ops sequentially. On failure it returns *PartialBatchError
// naming how many ops committed; everything before that index is durable.
func (d *Disk) Batch(_ context.Context, ops []Op) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, op := range ops {
		var err error
		switch op.Kind {
		case OpPut:
			err = d.putLocked(op.Key, op.Value)
		case OpDel:
			err = d.delLocked(op.Key)
		}
		if err != nil {
			return &PartialBatchError{Applied: i, Err: err}
		}
	}
	return nil
}

func (d *Disk) Close() error { return nil }
