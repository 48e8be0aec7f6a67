// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// errCorrupt marks a cache file that cannot be decoded.
var errCorrupt = errors.New("shader: corrupt cache file")

// cacheFile is the on-disk record of one compiled shader.
//
// Layout, little-endian:
//
//	u32 include count
//	per include: u32 path length, path bytes, u64 content hash
//	u64 binary size, binary bytes
type cacheFile struct {
	Includes []Include
	Binary   []byte
}

func cachePath(dir string, key uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%016x.shc", key))
}

func (f *cacheFile) encode() []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&b, le, uint32(len(f.Includes))) //nolint:gosec // include count is small
	for _, inc := range f.Includes {
		_ = binary.Write(&b, le, uint32(len(inc.Path))) //nolint:gosec // path length fits
		b.WriteString(inc.Path)
		_ = binary.Write(&b, le, inc.Hash)
	}
	_ = binary.Write(&b, le, uint64(len(f.Binary)))
	b.Write(f.Binary)
	return b.Bytes()
}

func decodeCacheFile(data []byte) (*cacheFile, error) {
	r := bytes.NewReader(data)
	le := binary.LittleEndian
	var n uint32
	if err := binary.Read(r, le, &n); err != nil {
		return nil, errors.Mark(err, errCorrupt)
	}
	f := &cacheFile{Includes: make([]Include, 0, n)}
	for range n {
		var plen uint32
		if err := binary.Read(r, le, &plen); err != nil {
			return nil, errors.Mark(err, errCorrupt)
		}
		if int64(plen) > int64(r.Len()) {
			return nil, errCorrupt
		}
		path := make([]byte, plen)
		if _, err := io.ReadFull(r, path); err != nil {
			return nil, errors.Mark(err, errCorrupt)
		}
		var h uint64
		if err := binary.Read(r, le, &h); err != nil {
			return nil, errors.Mark(err, errCorrupt)
		}
		f.Includes = append(f.Includes, Include{Path: string(path), Hash: h})
	}
	var size uint64
	if err := binary.Read(r, le, &size); err != nil {
		return nil, errors.Mark(err, errCorrupt)
	}
	if size != uint64(r.Len()) {
		return nil, errCorrupt
	}
	f.Binary = make([]byte, size)
	if _, err := io.ReadFull(r, f.Binary); err != nil {
		return nil, errors.Mark(err, errCorrupt)
	}
	return f, nil
}

// fresh reports whether every recorded include still has its recorded hash.
func (f *cacheFile) fresh() bool {
	for _, inc := range f.Includes {
		data, err := os.ReadFile(inc.Path)
		if err != nil || HashContent(data) != inc.Hash {
			return false
		}
	}
	return true
}

func readCacheFile(dir string, key uint64) (*cacheFile, error) {
	data, err := os.ReadFile(cachePath(dir, key))
	if err != nil {
		return nil, err
	}
	return decodeCacheFile(data)
}

// writeCacheFile writes through a temporary file so readers never see a
// partial record.
func writeCacheFile(dir string, key uint64, f *cacheFile) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "shader: create cache dir")
	}
	tmp, err := os.CreateTemp(dir, "shc-*")
	if err != nil {
		return errors.Wrap(err, "shader: create cache file")
	}
	if _, err := tmp.Write(f.encode()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "shader: write cache file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "shader: close cache file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), cachePath(dir, key)), "shader: publish cache file")
}
