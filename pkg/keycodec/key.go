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

// Package keycodec maps structured keys — a path plus an optional
// content-kind and event-kind tag — to the flat byte keys the kv package
// stores, and back.
package keycodec

import (
	"fmt"
	"strings"
)

// ContentKind is the payload encoding named by a structured key's suffix.
type ContentKind string

const (
	ContentKindCesr ContentKind = "cesr"
	ContentKindJSON ContentKind = "json"
)

// Encoding further qualifies a cesr ContentKind.
type Encoding string

const (
	EncodingBinary Encoding = "binary"
	EncodingText   Encoding = "text"
)

// EventKind is the closed set of KEL/TEL event tags a structured key may
// carry as its meta tag.
type EventKind string

const (
	EventICP EventKind = "icp"
	EventROT EventKind = "rot"
	EventIXN EventKind = "ixn"
	EventVCP EventKind = "vcp"
	EventISS EventKind = "iss"
	EventREV EventKind = "rev"
	EventUPG EventKind = "upg"
	EventVTC EventKind = "vtc"
	EventNRX EventKind = "nrx"
)

var validEventKinds = map[EventKind]bool{
	EventICP: true, EventROT: true, EventIXN: true,
	EventVCP: true, EventISS: true, EventREV: true,
	EventUPG: true, EventVTC: true, EventNRX: true,
}

// Key is a structured key: an ordered path plus optional content-kind,
// event-kind and (for cesr) encoding tags.
//
// The suffix grammar is greedy right-to-left: an
// optional `.{eventKind}`, then an optional `.{binary|text}` marker when
// ContentKind is cesr, then `.cesr` or `.json`. This means a path whose
// last segment is itself spelled like a closed-set event kind (e.g. a
// literal segment "icp") is ambiguous under decode; by convention path
// segments here are AIDs, zero-padded sequence numbers, or fixed keywords
// (`head`, `bundle`, `metadata`, `HEAD`, `seq`) that never collide with
// the event-kind tokens.
type Key struct {
	Path        []string
	ContentKind ContentKind
	EventKind   EventKind // optional; "" means absent
	Encoding    Encoding  // optional; only meaningful when ContentKind == cesr
}

// Encode renders k to its byte-key form.
func (k Key) Encode() ([]byte, error) {
	if len(k.Path) == 0 {
		return nil, fmt.Errorf("keycodec: empty path")
	}
	for _, seg := range k.Path {
		if strings.Contains(seg, "/") {
			return nil, fmt.Errorf("keycodec: path segment %q contains '/'", seg)
		}
	}
	if k.EventKind != "" && !validEventKinds[k.EventKind] {
		return nil, fmt.Errorf("keycodec: unknown event kind %q", k.EventKind)
	}

	var suffix strings.Builder
	if k.EventKind != "" {
		suffix.WriteByte('.')
		suffix.WriteString(string(k.EventKind))
	}

	switch k.ContentKind {
	case ContentKindCesr:
		if k.Encoding != "" {
			if k.Encoding != EncodingBinary && k.Encoding != EncodingText {
				return nil, fmt.Errorf("keycodec: unknown encoding %q", k.Encoding)
			}
			suffix.WriteByte('.')
			suffix.WriteString(string(k.Encoding))
		}
		suffix.WriteString(".cesr")
	case ContentKindJSON:
		if k.Encoding != "" {
			return nil, fmt.Errorf("keycodec: encoding marker is only valid for cesr content")
		}
		suffix.WriteString(".json")
	default:
		return nil, fmt.Errorf("keycodec: unknown content kind %q", k.ContentKind)
	}

	path := strings.Join(k.Path[:len(k.Path)-1], "/")
	last := k.Path[len(k.Path)-1] + suffix.String()
	if path == "" {
		return []byte(last), nil
	}
	return []byte(path + "/" + last), nil
}

// Decode parses a byte key back into a structured Key. decode(encode(k))
// == k for every Key accepted by Encode whose path segments are non-empty
// and whose final segment does not itself end in a suffix token (see Key).
func Decode(b []byte) (Key, error) {
	s := string(b)
	if s == "" {
		return Key{}, fmt.Errorf("keycodec: empty key")
	}

	slash := strings.LastIndex(s, "/")
	dir, last := "", s
	if slash >= 0 {
		dir, last = s[:slash], s[slash+1:]
	}

	parts := strings.Split(last, ".")
	if len(parts) < 2 {
		return Key{}, fmt.Errorf("keycodec: %q has no recognised type suffix", s)
	}

	var contentKind ContentKind
	switch parts[len(parts)-1] {
	case string(ContentKindCesr):
		contentKind = ContentKindCesr
	case string(ContentKindJSON):
		contentKind = ContentKindJSON
	default:
		return Key{}, fmt.Errorf("keycodec: %q has unknown content kind suffix %q", s, parts[len(parts)-1])
	}
	parts = parts[:len(parts)-1]

	var encoding Encoding
	if contentKind == ContentKindCesr && len(parts) > 0 {
		switch parts[len(parts)-1] {
		case string(EncodingBinary):
			encoding = EncodingBinary
			parts = parts[:len(parts)-1]
		case string(EncodingText):
			encoding = EncodingText
			parts = parts[:len(parts)-1]
		}
	}

	var eventKind EventKind
	if len(parts) > 0 {
		if cand := EventKind(parts[len(parts)-1]); validEventKinds[cand] {
			eventKind = cand
			parts = parts[:len(parts)-1]
		}
	}

	lastSeg := strings.Join(parts, ".")
	if lastSeg == "" {
		return Key{}, fmt.Errorf("keycodec: %q has an empty final path segment", s)
	}

	var path []string
	if dir != "" {
		path = strings.Split(dir, "/")
	}
	path = append(path, lastSeg)

	return Key{Path: path, ContentKind: contentKind, EventKind: eventKind, Encoding: encoding}, nil
}

// String renders the encoded form, or "" on an invalid Key.
func (k Key) String() string {
	b, err := k.Encode()
	if err != nil {
		return ""
	}
	return string(b)
}
