// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/rendergraph/internal/rglog"
)

// MaxRootCost is the root signature budget in 32-bit units.
const MaxRootCost = 64

// Root signature costs, in 32-bit units.
const (
	rootCBVCost   = 2 // root descriptor
	rootTableCost = 1 // descriptor table
)

// BindingKind classifies a bound resource.
type BindingKind uint8

const (
	UniformBuffer BindingKind = iota
	StorageBuffer
	Texture
	StorageTexture
	Sampler
)

func (k BindingKind) String() string {
	return [...]string{"uniform", "storage", "texture", "storage_texture", "sampler"}[k]
}

// Member is one field of a uniform or storage struct.
type Member struct {
	Offset uint64
	Size   uint64
}

// Binding is one resource variable declared with @group/@binding.
type Binding struct {
	Name     string
	Kind     BindingKind
	Group    uint32
	Binding  uint32
	Type     string
	ReadOnly bool
	// Size is the struct size of buffer bindings, 0 when unknown.
	Size    uint64
	Members map[string]Member
	// Slot is the root parameter index. Uniform buffers get one slot each;
	// textures, storage resources and samplers share one table slot per
	// group and kind family.
	Slot int
}

// Reflection lists the resources a shader binds and its entry points.
type Reflection struct {
	Bindings      []Binding
	EntryPoints   map[Stage][]string
	WorkgroupSize [3]uint32

	byName map[string]int
	tables int
}

// Lookup returns the binding named name. Unknown names are logged and
// reported as missing.
func (r *Reflection) Lookup(name string) (Binding, bool) {
	if i, ok := r.byName[name]; ok {
		return r.Bindings[i], true
	}
	rglog.Logger().Warn("shader: unknown reflection variable", "name", name)
	return Binding{}, false
}

// Slot returns the root slot of name, or -1 if the shader does not bind it.
func (r *Reflection) Slot(name string) int {
	b, ok := r.Lookup(name)
	if !ok {
		return -1
	}
	return b.Slot
}

// Member returns the offset and size of a field of a bound buffer.
func (r *Reflection) Member(buffer, field string) (Member, bool) {
	b, ok := r.Lookup(buffer)
	if !ok {
		return Member{}, false
	}
	m, ok := b.Members[field]
	if !ok {
		rglog.Logger().Warn("shader: unknown buffer member", "buffer", buffer, "member", field)
	}
	return m, ok
}

// Filter returns the bindings of one kind in slot order.
func (r *Reflection) Filter(kind BindingKind) []Binding {
	var out []Binding
	for _, b := range r.Bindings {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}

// Groups returns the bind group indices used, ascending.
func (r *Reflection) Groups() []uint32 {
	var gs []uint32
	for _, b := range r.Bindings {
		if !slices.Contains(gs, b.Group) {
			gs = append(gs, b.Group)
		}
	}
	slices.Sort(gs)
	return gs
}

// RootCost returns the root signature size the bindings need.
func (r *Reflection) RootCost() int {
	return len(r.Filter(UniformBuffer))*rootCBVCost + r.tables*rootTableCost
}

// Merge combines the reflections of several stages of one pipeline.
// Bindings with the same group and binding index are kept once.
func Merge(refs ...*Reflection) *Reflection {
	var all []Binding
	seen := make(map[[2]uint32]bool)
	out := &Reflection{EntryPoints: make(map[Stage][]string), WorkgroupSize: [3]uint32{1, 1, 1}}
	for _, r := range refs {
		if r == nil {
			continue
		}
		for _, b := range r.Bindings {
			k := [2]uint32{b.Group, b.Binding}
			if seen[k] {
				continue
			}
			seen[k] = true
			all = append(all, b)
		}
		for st, eps := range r.EntryPoints {
			out.EntryPoints[st] = append(out.EntryPoints[st], eps...)
		}
		if r.WorkgroupSize != [3]uint32{1, 1, 1} {
			out.WorkgroupSize = r.WorkgroupSize
		}
	}
	out.assign(all)
	return out
}

var (
	bindingRegex   = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
	structRegex    = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)
	fieldRegex     = regexp.MustCompile(`^(?:@\w+(?:\([^)]*\))?\s*)*(\w+)\s*:\s*(.+)$`)
	entryRegex     = regexp.MustCompile(`@(vertex|fragment|compute)\b[^{]*?\bfn\s+(\w+)`)
	workgroupRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)
	blockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment    = regexp.MustCompile(`//[^\n]*`)
)

// Reflect scans preprocessed WGSL for resource bindings, struct layouts
// and entry points.
func Reflect(wgsl string) *Reflection {
	src := lineComment.ReplaceAllString(blockComment.ReplaceAllString(wgsl, ""), "")
	layouts := structLayouts(src)

	var bindings []Binding
	for _, m := range bindingRegex.FindAllStringSubmatch(src, -1) {
		group, _ := strconv.ParseUint(m[1], 10, 32)
		binding, _ := strconv.ParseUint(m[2], 10, 32)
		b := Binding{
			Name:    m[4],
			Group:   uint32(group),
			Binding: uint32(binding),
			Type:    strings.TrimSpace(m[5]),
		}
		space := strings.ReplaceAll(m[3], " ", "")
		switch {
		case space == "uniform":
			b.Kind = UniformBuffer
		case strings.HasPrefix(space, "storage"):
			b.Kind = StorageBuffer
			b.ReadOnly = space == "storage" || space == "storage,read"
		case strings.HasPrefix(b.Type, "texture_storage_"):
			b.Kind = StorageTexture
		case strings.HasPrefix(b.Type, "texture_"):
			b.Kind = Texture
			b.ReadOnly = true
		case strings.HasPrefix(b.Type, "sampler"):
			b.Kind = Sampler
		default:
			rglog.Logger().Warn("shader: unclassified binding", "name", b.Name, "type", b.Type)
			continue
		}
		if b.Kind == UniformBuffer || b.Kind == StorageBuffer {
			if l, ok := resolveLayout(b.Type, layouts); ok {
				b.Size = l.size
				b.Members = l.members
			}
		}
		bindings = append(bindings, b)
	}

	r := &Reflection{EntryPoints: make(map[Stage][]string), WorkgroupSize: [3]uint32{1, 1, 1}}
	for _, m := range entryRegex.FindAllStringSubmatch(src, -1) {
		st := map[string]Stage{"vertex": StageVertex, "fragment": StageFragment, "compute": StageCompute}[m[1]]
		r.EntryPoints[st] = append(r.EntryPoints[st], m[2])
	}
	if m := workgroupRegex.FindStringSubmatch(src); m != nil {
		for i := range 3 {
			if m[i+1] == "" {
				continue
			}
			if v, err := strconv.ParseUint(m[i+1], 10, 32); err == nil {
				r.WorkgroupSize[i] = uint32(v)
			}
		}
	}
	r.assign(bindings)
	return r
}

// assign orders bindings by (group, binding) and gives out root slots:
// uniform buffers first, one each, then one table per group for shader
// resources and one per group for samplers.
func (r *Reflection) assign(bindings []Binding) {
	slices.SortFunc(bindings, func(a, b Binding) int {
		if a.Group != b.Group {
			return int(a.Group) - int(b.Group)
		}
		return int(a.Binding) - int(b.Binding)
	})
	slot := 0
	for i := range bindings {
		if bindings[i].Kind == UniformBuffer {
			bindings[i].Slot = slot
			slot++
		}
	}
	type tableKey struct {
		group   uint32
		sampler bool
	}
	tables := make(map[tableKey]int)
	for i := range bindings {
		b := &bindings[i]
		if b.Kind == UniformBuffer {
			continue
		}
		k := tableKey{b.Group, b.Kind == Sampler}
		s, ok := tables[k]
		if !ok {
			s = slot
			tables[k] = s
			slot++
		}
		b.Slot = s
	}
	r.Bindings = bindings
	r.tables = len(tables)
	r.byName = make(map[string]int, len(bindings))
	for i, b := range bindings {
		r.byName[b.Name] = i
	}
}

type typeLayout struct {
	size    uint64
	align   uint64
	members map[string]Member
}

// WGSL host-shareable layouts of the scalar, vector and matrix types.
var primitiveLayouts = map[string]typeLayout{
	"f32": {size: 4, align: 4}, "i32": {size: 4, align: 4}, "u32": {size: 4, align: 4},
	"f16": {size: 2, align: 2},
	"vec2<f32>": {size: 8, align: 8}, "vec2f": {size: 8, align: 8},
	"vec2<i32>": {size: 8, align: 8}, "vec2i": {size: 8, align: 8},
	"vec2<u32>": {size: 8, align: 8}, "vec2u": {size: 8, align: 8},
	"vec3<f32>": {size: 12, align: 16}, "vec3f": {size: 12, align: 16},
	"vec3<i32>": {size: 12, align: 16}, "vec3i": {size: 12, align: 16},
	"vec3<u32>": {size: 12, align: 16}, "vec3u": {size: 12, align: 16},
	"vec4<f32>": {size: 16, align: 16}, "vec4f": {size: 16, align: 16},
	"vec4<i32>": {size: 16, align: 16}, "vec4i": {size: 16, align: 16},
	"vec4<u32>": {size: 16, align: 16}, "vec4u": {size: 16, align: 16},
	"mat2x2<f32>": {size: 16, align: 8}, "mat2x2f": {size: 16, align: 8},
	"mat3x3<f32>": {size: 48, align: 16}, "mat3x3f": {size: 48, align: 16},
	"mat4x4<f32>": {size: 64, align: 16}, "mat4x4f": {size: 64, align: 16},
	"atomic<u32>": {size: 4, align: 4}, "atomic<i32>": {size: 4, align: 4},
}

func alignTo(align, v uint64) uint64 {
	return (v + align - 1) / align * align
}

type structField struct{ name, typ string }

// structLayouts computes layouts for every struct, resolving nested
// structs in dependency order.
func structLayouts(src string) map[string]typeLayout {
	pending := make(map[string][]structField)
	var order []string
	for _, m := range structRegex.FindAllStringSubmatch(src, -1) {
		var fields []structField
		for _, part := range splitTopLevel(m[2]) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if fm := fieldRegex.FindStringSubmatch(part); fm != nil {
				fields = append(fields, structField{fm[1], strings.TrimSpace(fm[2])})
			}
		}
		pending[m[1]] = fields
		order = append(order, m[1])
	}

	known := make(map[string]typeLayout)
	for progress := true; progress && len(pending) > 0; {
		progress = false
		for _, name := range order {
			fields, ok := pending[name]
			if !ok {
				continue
			}
			if l, ok := layoutStruct(fields, known); ok {
				known[name] = l
				delete(pending, name)
				progress = true
			}
		}
	}
	return known
}

func layoutStruct(fields []structField, known map[string]typeLayout) (typeLayout, bool) {
	l := typeLayout{align: 1, members: make(map[string]Member, len(fields))}
	var off uint64
	for _, f := range fields {
		fl, ok := resolveLayout(f.typ, known)
		if !ok {
			return typeLayout{}, false
		}
		off = alignTo(fl.align, off)
		l.members[f.name] = Member{Offset: off, Size: fl.size}
		off += fl.size
		l.align = max(l.align, fl.align)
	}
	l.size = alignTo(l.align, off)
	return l, true
}

func resolveLayout(typ string, known map[string]typeLayout) (typeLayout, bool) {
	if l, ok := primitiveLayouts[typ]; ok {
		return l, true
	}
	if l, ok := known[typ]; ok {
		return l, true
	}
	if inner, ok := strings.CutPrefix(typ, "array<"); ok && strings.HasSuffix(inner, ">") {
		parts := splitTopLevel(strings.TrimSuffix(inner, ">"))
		el, ok := resolveLayout(strings.TrimSpace(parts[0]), known)
		if !ok {
			return typeLayout{}, false
		}
		stride := alignTo(el.align, el.size)
		if len(parts) == 1 {
			// Runtime-sized: one element is the minimum binding size.
			return typeLayout{size: stride, align: el.align}, true
		}
		n, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return typeLayout{}, false
		}
		return typeLayout{size: n * stride, align: el.align}, true
	}
	return typeLayout{}, false
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
