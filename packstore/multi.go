package packstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/r1tools/revpk"
	"github.com/r1tools/revpk/codec"
	"github.com/r1tools/revpk/internal"
	"github.com/r1tools/revpk/manifest"
)

// PackMulti packs the multi-locale manifest into a single shared data file
// with one directory file per locale. Deduplication through the shared
// ChunkStore makes every locale's unchanged files reference the same bytes.
func PackMulti(target, level string, cfg codec.Config, workspace, buildPath string, opts Options) error {
	start := time.Now()
	m, err := manifest.LoadMulti(filepath.Join(workspace, "manifest", manifest.MultiName))
	if err != nil {
		return err
	}
	packName, _ := revpk.Pair("", target, level, 0)
	if err := os.MkdirAll(buildPath, 0777); err != nil {
		return fmt.Errorf("create build directory: %w", err)
	}
	store, err := Create(filepath.Join(buildPath, packName))
	if err != nil {
		return err
	}
	comp, err := codec.New(cfg)
	if err != nil {
		store.Close()
		return err
	}

	// project every locale onto the union of paths: a locale lacking a file
	// another locale has packs the english record (and english bytes, via the
	// content fallback), so each locale's directory is a complete view
	english := m.ByLocale[revpk.DefaultLocale]
	if english != nil {
		for locale, b := range m.ByLocale {
			if locale == revpk.DefaultLocale {
				continue
			}
			for ep, e := range english.Entries {
				if _, ok := b.Entries[ep]; !ok {
					b.Entries[ep] = e
				}
			}
		}
	}

	p := &Packer{Comp: comp, ContentRoot: filepath.Join(workspace, "content"), Fallback: true}
	locales := m.Locales()
	var jobs []packJob
	for _, locale := range locales {
		b := m.ByLocale[locale]
		for _, ep := range b.Paths() {
			jobs = append(jobs, packJob{locale: locale, path: ep, entry: b.Entries[ep], store: store})
		}
	}
	blocks, err := p.runJobs(jobs, opts.threads(), opts.Verbose)
	cerr := store.Close()
	if err != nil {
		return err
	}
	if cerr != nil {
		return cerr
	}

	perLocale := map[string]*revpk.Dir{}
	for i, blk := range blocks {
		if blk == nil {
			continue
		}
		d := perLocale[jobs[i].locale]
		if d == nil {
			d = &revpk.Dir{}
			perLocale[jobs[i].locale] = d
		}
		d.Entries = append(d.Entries, *blk)
	}
	var files int
	for _, locale := range locales {
		d := perLocale[locale]
		if d == nil {
			continue
		}
		files += len(d.Entries)
		_, dirName := revpk.Pair(locale, target, level, 0)
		if err := writeDirFile(d, filepath.Join(buildPath, dirName)); err != nil {
			return err
		}
	}

	fmt.Printf("packed %d files for %d locales into %s (%s total, %s deduplicated in %d shared chunks) in %s\n",
		files, len(locales), packName,
		internal.FormatBytesSI(store.Size()),
		internal.FormatBytesSI(int64(store.SharedBytes())),
		store.SharedChunks(),
		time.Since(start).Round(time.Millisecond))
	return nil
}

// UnpackMulti unpacks a family of locale directory files sharing a base
// name. The english directory (or the first available locale) is unpacked in
// full; every other locale emits only the files whose CRC differs from the
// fallback. A multi-locale manifest covering the union of entries is written
// under <outRoot>/manifest/.
func UnpackMulti(anyDirPath, outRoot string, opts Options) error {
	start := time.Now()
	baseDir := filepath.Dir(anyDirPath)
	base, _ := revpk.StripLocalePrefix(filepath.Base(anyDirPath))
	if !strings.Contains(base, "pak000_dir") {
		return fmt.Errorf("unpack multi: %q is not a directory file", anyDirPath)
	}

	dirs := map[string]*revpk.Dir{}
	var found []string
	for _, locale := range revpk.KnownLocales {
		p := filepath.Join(baseDir, locale+base)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		d, err := ParseDirFile(p)
		if err != nil {
			return err
		}
		dirs[locale] = d
		found = append(found, locale)
	}
	if len(found) == 0 {
		return fmt.Errorf("unpack multi: no locale directory files matching %q in %q", base, baseDir)
	}
	fallbackLocale := found[0]
	if _, ok := dirs[revpk.DefaultLocale]; ok {
		fallbackLocale = revpk.DefaultLocale
	}
	fallback := dirs[fallbackLocale]

	comp, err := codec.New(codec.Config{})
	if err != nil {
		return err
	}
	u := &Unpacker{Comp: comp, Verbose: opts.Verbose}

	var firstErr error
	all := make([]int, len(fallback.Entries))
	for i := range all {
		all[i] = i
	}
	if err := u.unpackEntries(fallback, all, filepath.Join(outRoot, "content", revpk.DefaultLocale), opts.threads()); err != nil && firstErr == nil {
		firstErr = err
	}

	crcs := make(map[string]uint32, len(fallback.Entries))
	for i := range fallback.Entries {
		crcs[fallback.Entries[i].Path] = fallback.Entries[i].CRC32
	}
	var diffed int
	for _, locale := range found {
		if locale == fallbackLocale {
			continue
		}
		d := dirs[locale]
		var sel []int
		for i := range d.Entries {
			if c, ok := crcs[d.Entries[i].Path]; !ok || c != d.Entries[i].CRC32 {
				sel = append(sel, i)
			}
		}
		diffed += len(sel)
		if err := u.unpackEntries(d, sel, filepath.Join(outRoot, "content", locale), opts.threads()); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	multi := &manifest.Multi{ByLocale: map[string]*manifest.Build{}}
	for locale, d := range dirs {
		multi.ByLocale[locale] = buildFromDir(d)
	}
	if err := os.MkdirAll(filepath.Join(outRoot, "manifest"), 0777); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	if err := multi.Save(filepath.Join(outRoot, "manifest", manifest.MultiName)); err != nil {
		return err
	}

	fmt.Printf("unpacked %d files (%s fallback) plus %d locale differences across %d locales in %s\n",
		len(fallback.Entries), fallbackLocale, diffed, len(found), time.Since(start).Round(time.Millisecond))
	return firstErr
}
