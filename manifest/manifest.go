// Package manifest reads and writes the textual build manifests driving a
// pack operation. A manifest is a KeyValues document: a top-level
// "BuildManifest" object whose children are entry paths (single-locale) or
// locales containing entry paths (multi-locale), each with the five build
// fields.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/andygrunwald/vdf"

	"github.com/r1tools/revpk"
)

// MultiName is the file name of the multi-locale manifest under
// <workspace>/manifest/.
const MultiName = "multiLangManifest.vdf"

// ErrParse wraps manifest syntax and structure errors.
var ErrParse = errors.New("manifest parse error")

// Load flags understood by the game loader. Only the defaults matter for
// building; everything else is carried opaquely.
const (
	LoadVisible uint32 = 1 << 0
	LoadCache   uint32 = 1 << 1

	DefaultLoadFlags           = LoadVisible | LoadCache
	DefaultTextureFlags uint16 = 0
)

// Entry is the per-file build record.
type Entry struct {
	PreloadSize    uint16
	LoadFlags      uint32
	TextureFlags   uint16
	UseCompression bool
	DeDuplicate    bool
}

// Default returns the build record used when a field (or a whole entry) is
// absent: visible, cached, compressed, deduplicated.
func Default() Entry {
	return Entry{
		LoadFlags:      DefaultLoadFlags,
		TextureFlags:   DefaultTextureFlags,
		UseCompression: true,
		DeDuplicate:    true,
	}
}

// FromEntryBlock derives a build record from a packed entry: compression iff
// any fragment is stored compressed, flags from the first fragment, defaults
// when there are no fragments.
func FromEntryBlock(b *revpk.EntryBlock) Entry {
	e := Entry{
		PreloadSize:    uint16(len(b.Preload)),
		LoadFlags:      DefaultLoadFlags,
		TextureFlags:   DefaultTextureFlags,
		UseCompression: b.IsCompressed(),
		DeDuplicate:    true,
	}
	if len(b.Chunks) != 0 {
		e.LoadFlags = b.LoadFlags()
		e.TextureFlags = b.TextureFlags()
	}
	return e
}

// Build is a single-locale manifest: one record per entry path. Paths are
// kept sorted so pack order is deterministic across runs.
type Build struct {
	Entries map[string]Entry
}

// Paths returns the entry paths in sorted order.
func (b *Build) Paths() []string {
	out := make([]string, 0, len(b.Entries))
	for p := range b.Entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Load reads a single-locale manifest from path.
func Load(path string) (*Build, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	root, err := parseRoot(f)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %q: %w", path, err)
	}
	b := &Build{Entries: map[string]Entry{}}
	for entryPath, v := range root {
		attribs, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("parse manifest %q: %w: entry %q is not an object", path, ErrParse, entryPath)
		}
		e, err := parseEntry(attribs)
		if err != nil {
			return nil, fmt.Errorf("parse manifest %q: entry %q: %w", path, entryPath, err)
		}
		b.Entries[entryPath] = e
	}
	return b, nil
}

// Write serializes the manifest.
func (b *Build) Write(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("\"BuildManifest\"\n{\n")
	for _, p := range b.Paths() {
		writeEntry(&sb, 1, p, b.Entries[p])
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// Save writes the manifest to path.
func (b *Build) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()
	if err := b.Write(f); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return f.Close()
}

// Multi is a multi-locale manifest: locale → entry path → record.
type Multi struct {
	ByLocale map[string]*Build
}

// Locales returns the locales in sorted order.
func (m *Multi) Locales() []string {
	out := make([]string, 0, len(m.ByLocale))
	for l := range m.ByLocale {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// AllPaths returns the union of entry paths across all locales, sorted.
func (m *Multi) AllPaths() []string {
	seen := map[string]struct{}{}
	for _, b := range m.ByLocale {
		for p := range b.Entries {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// LoadMulti reads a multi-locale manifest from path.
func LoadMulti(path string) (*Multi, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	root, err := parseRoot(f)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %q: %w", path, err)
	}
	m := &Multi{ByLocale: map[string]*Build{}}
	for locale, v := range root {
		entries, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("parse manifest %q: %w: locale %q is not an object", path, ErrParse, locale)
		}
		b := &Build{Entries: map[string]Entry{}}
		for entryPath, ev := range entries {
			attribs, ok := ev.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("parse manifest %q: %w: entry %q is not an object", path, ErrParse, entryPath)
			}
			e, err := parseEntry(attribs)
			if err != nil {
				return nil, fmt.Errorf("parse manifest %q: locale %q entry %q: %w", path, locale, entryPath, err)
			}
			b.Entries[entryPath] = e
		}
		m.ByLocale[locale] = b
	}
	return m, nil
}

// Write serializes the multi-locale manifest. Every locale is projected onto
// the union of all entry paths: a locale lacking a path that another locale
// has gets the english record for it, so each locale block is a complete view.
func (m *Multi) Write(w io.Writer) error {
	all := m.AllPaths()
	english := m.ByLocale[revpk.DefaultLocale]
	var sb strings.Builder
	sb.WriteString("\"BuildManifest\"\n{\n")
	for _, locale := range m.Locales() {
		b := m.ByLocale[locale]
		sb.WriteString("\t\"" + locale + "\"\n\t{\n")
		for _, p := range all {
			e, ok := b.Entries[p]
			if !ok {
				if english == nil {
					continue
				}
				if e, ok = english.Entries[p]; !ok {
					continue
				}
			}
			writeEntry(&sb, 2, p, e)
		}
		sb.WriteString("\t}\n")
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// Save writes the multi-locale manifest to path.
func (m *Multi) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()
	if err := m.Write(f); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return f.Close()
}

func parseRoot(r io.Reader) (map[string]interface{}, error) {
	doc, err := vdf.NewParser(r).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	root, ok := doc["BuildManifest"]
	if !ok {
		// tolerate a differently named root as long as there is exactly one
		if len(doc) != 1 {
			return nil, fmt.Errorf("%w: no BuildManifest object", ErrParse)
		}
		for _, v := range doc {
			root = v
		}
	}
	m, ok := root.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: BuildManifest is not an object", ErrParse)
	}
	return m, nil
}

func parseEntry(attribs map[string]interface{}) (Entry, error) {
	e := Default()
	if err := parseUint(attribs, "preloadSize", 16, func(v uint64) { e.PreloadSize = uint16(v) }); err != nil {
		return e, err
	}
	if err := parseUint(attribs, "loadFlags", 32, func(v uint64) { e.LoadFlags = uint32(v) }); err != nil {
		return e, err
	}
	if err := parseUint(attribs, "textureFlags", 16, func(v uint64) { e.TextureFlags = uint16(v) }); err != nil {
		return e, err
	}
	if err := parseBool(attribs, "useCompression", &e.UseCompression); err != nil {
		return e, err
	}
	if err := parseBool(attribs, "deDuplicate", &e.DeDuplicate); err != nil {
		return e, err
	}
	return e, nil
}

func parseUint(attribs map[string]interface{}, key string, bits int, set func(uint64)) error {
	v, ok := attribs[key]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: %s is not a value", ErrParse, key)
	}
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, key, err)
	}
	set(n)
	return nil
}

func parseBool(attribs map[string]interface{}, key string, out *bool) error {
	v, ok := attribs[key]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: %s is not a value", ErrParse, key)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, key, err)
	}
	*out = n != 0
	return nil
}

func writeEntry(sb *strings.Builder, depth int, path string, e Entry) {
	indent := strings.Repeat("\t", depth)
	sb.WriteString(indent + "\"" + path + "\"\n" + indent + "{\n")
	field := func(k, v string) {
		sb.WriteString(indent + "\t\"" + k + "\"\t\"" + v + "\"\n")
	}
	field("preloadSize", strconv.FormatUint(uint64(e.PreloadSize), 10))
	field("loadFlags", strconv.FormatUint(uint64(e.LoadFlags), 10))
	field("textureFlags", strconv.FormatUint(uint64(e.TextureFlags), 10))
	field("useCompression", boolField(e.UseCompression))
	field("deDuplicate", boolField(e.DeDuplicate))
	sb.WriteString(indent + "}\n")
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
