// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// maybeCompress gzips values at or above minSize when that actually saves
// space. Cached values are JSON text, so the gzip magic bytes on the wire
// unambiguously mark compressed entries.
func maybeCompress(value []byte, minSize int) []byte {
	if minSize <= 0 || len(value) < minSize {
		return value
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(value); err != nil {
		return value
	}
	if err := w.Close(); err != nil {
		return value
	}
	if buf.Len() >= len(value) {
		return value
	}
	return buf.Bytes()
}

// maybeDecompress reverses maybeCompress, passing plain values through.
func maybeDecompress(value []byte) ([]byte, error) {
	if len(value) < 2 || value[0] != 0x1f || value[1] != 0x8b {
		return value, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
