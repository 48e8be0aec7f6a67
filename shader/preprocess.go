// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"hash/fnv"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rendergraph/internal/rglog"
)

// ErrIncludeNotFound is returned when no search path holds an include.
var ErrIncludeNotFound = errors.New("shader: include not found")

var includeRegex = regexp.MustCompile(`^\s*#include\s+"([^"]+)"\s*$`)

// Include records one file read while preprocessing.
type Include struct {
	Path string
	Hash uint64
}

// HashContent hashes file contents for include staleness checks.
func HashContent(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Preprocessor expands includes and macros.
type Preprocessor struct {
	SearchPaths []string
}

// Result is the output of Preprocess.
type Result struct {
	Text     string
	Includes []Include
}

// Preprocess loads src (from Text or Path), splices every #include in place
// and substitutes macros. Each file is included at most once.
func (p *Preprocessor) Preprocess(src Source) (Result, error) {
	var res Result
	seen := make(map[string]bool)

	text := src.Text
	if text == "" {
		if src.Path == "" {
			return Result{}, errors.New("shader: source has neither text nor path")
		}
		path, data, err := p.load(src.Path, "")
		if err != nil {
			return Result{}, err
		}
		seen[path] = true
		res.Includes = append(res.Includes, Include{Path: path, Hash: HashContent(data)})
		text = string(data)
	}

	var b strings.Builder
	if err := p.expand(&b, text, dirOf(src.Path), seen, &res.Includes); err != nil {
		return Result{}, err
	}
	res.Text = substituteMacros(b.String(), src.Macros)
	return res, nil
}

func dirOf(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}

func (p *Preprocessor) expand(b *strings.Builder, text, dir string, seen map[string]bool, incs *[]Include) error {
	for line := range strings.Lines(text) {
		m := includeRegex.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
		if m == nil {
			b.WriteString(line)
			continue
		}
		path, data, err := p.load(m[1], dir)
		if err != nil {
			return err
		}
		if seen[path] {
			continue
		}
		seen[path] = true
		*incs = append(*incs, Include{Path: path, Hash: HashContent(data)})
		if err := p.expand(b, string(data), filepath.Dir(path), seen, incs); err != nil {
			return errors.Wrapf(err, "in %s", path)
		}
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	return nil
}

// load resolves name against the including file's directory, then each
// search path in order. Misses are logged and the next path is tried.
func (p *Preprocessor) load(name, dir string) (string, []byte, error) {
	var candidates []string
	if filepath.IsAbs(name) {
		candidates = []string{name}
	} else {
		if dir != "" {
			candidates = append(candidates, filepath.Join(dir, name))
		}
		for _, sp := range p.SearchPaths {
			candidates = append(candidates, filepath.Join(sp, name))
		}
		if len(candidates) == 0 {
			candidates = []string{name}
		}
	}
	for _, c := range candidates {
		data, err := os.ReadFile(c)
		if err == nil {
			return filepath.Clean(c), data, nil
		}
		rglog.Logger().Warn("shader: include search miss", "name", name, "tried", c, "err", err)
	}
	return "", nil, errors.Wrapf(ErrIncludeNotFound, "%q (searched %d paths)", name, len(candidates))
}

// substituteMacros replaces whole identifiers named by macros.
func substituteMacros(text string, macros []Macro) string {
	if len(macros) == 0 {
		return text
	}
	defs := make(map[string]string, len(macros))
	for _, m := range macros {
		defs[m.Name] = m.Value
	}
	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		c := text[i]
		if !isIdentStart(c) {
			b.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(text) && isIdentPart(text[j]) {
			j++
		}
		word := text[i:j]
		if v, ok := defs[word]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(word)
		}
		i = j
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
