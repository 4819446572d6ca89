package packstore

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/r1tools/revpk"
	"github.com/r1tools/revpk/codec"
	"github.com/r1tools/revpk/internal"
	"github.com/r1tools/revpk/manifest"
)

// Server-stream exclusions: files matching any of these stay client-only.
var (
	deltaServerExcludedExts = map[string]bool{
		".raw": true, ".vcs": true, ".vtf": true, ".vfont": true,
		".vbf": true, ".bsp_lump": true, ".vvd": true, ".vtx": true,
	}
	deltaServerExcludedDirs = map[string]bool{
		"depot": true, "media": true, "shaders": true, "sound": true,
	}
)

// deltaStream routes an entry into the client or server shared data file.
func deltaStream(entryPath, srcMap string) string {
	if srcMap == "mp_npe" {
		return "client"
	}
	if deltaServerExcludedExts[strings.ToLower(path.Ext(entryPath))] {
		return "client"
	}
	if deltaServerExcludedDirs[internal.TopLevelDir(entryPath)] {
		return "client"
	}
	return "server"
}

// deltaEffectiveMap rehomes map geometry into the shared mp_common name.
func deltaEffectiveMap(entryPath, srcMap string) string {
	if path.Ext(entryPath) == ".bsp" {
		return "mp_common"
	}
	return srcMap
}

type deltaJob struct {
	locale  string
	mapName string
	path    string
	entry   manifest.Entry
	stream  string
	effMap  string
	fill    *revpk.EntryBlock // copied from the english record instead of packing
}

type deltaKey struct {
	mapName string
	path    string
}

// PackDeltaCommon batch-packs every per-map manifest of a context into the
// two shared delta-common data files, emitting one directory file per
// (locale, stream, effective map). English files are packed first so their
// entries can stand in for non-english files whose source is missing.
func PackDeltaCommon(context string, cfg codec.Config, workspace, buildPath string, opts Options) error {
	start := time.Now()

	type mapManifest struct {
		locale  string
		mapName string
		build   *manifest.Build
	}
	manifestDir := filepath.Join(workspace, "manifest")
	dents, err := os.ReadDir(manifestDir)
	if err != nil {
		return fmt.Errorf("list manifests: %w", err)
	}
	var manifests []mapManifest
	for _, de := range dents {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".vdf") || name == manifest.MultiName {
			continue
		}
		locale, target, mapName, ok := revpk.SplitBaseName(strings.TrimSuffix(name, ".vdf"))
		if !ok || target != context {
			continue
		}
		b, err := manifest.Load(filepath.Join(manifestDir, name))
		if err != nil {
			return err
		}
		manifests = append(manifests, mapManifest{locale: locale, mapName: mapName, build: b})
	}
	if len(manifests) == 0 {
		return fmt.Errorf("pack delta common: no %s manifests under %q", context, manifestDir)
	}
	sort.Slice(manifests, func(i, j int) bool {
		a, b := manifests[i], manifests[j]
		if (a.locale == revpk.DefaultLocale) != (b.locale == revpk.DefaultLocale) {
			return a.locale == revpk.DefaultLocale
		}
		if a.locale != b.locale {
			return a.locale < b.locale
		}
		return a.mapName < b.mapName
	})

	if err := os.MkdirAll(buildPath, 0777); err != nil {
		return fmt.Errorf("create build directory: %w", err)
	}
	stores := map[string]*ChunkStore{}
	for _, stream := range []string{"client", "server"} {
		s, err := Create(filepath.Join(buildPath, revpk.DeltaCommonPackName(stream)))
		if err != nil {
			for _, o := range stores {
				o.Close()
			}
			return err
		}
		stores[stream] = s
	}
	closeStores := func() error {
		var first error
		for _, stream := range []string{"client", "server"} {
			if err := stores[stream].Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	comp, err := codec.New(cfg)
	if err != nil {
		closeStores()
		return err
	}
	contentRoot := filepath.Join(workspace, "content")

	var english, others []deltaJob
	for _, mf := range manifests {
		for _, ep := range mf.build.Paths() {
			j := deltaJob{
				locale:  mf.locale,
				mapName: mf.mapName,
				path:    ep,
				entry:   mf.build.Entries[ep],
				stream:  deltaStream(ep, mf.mapName),
				effMap:  deltaEffectiveMap(ep, mf.mapName),
			}
			if j.locale == revpk.DefaultLocale {
				english = append(english, j)
			} else {
				others = append(others, j)
			}
		}
	}

	runBatch := func(p *Packer, batch []deltaJob) ([]*revpk.EntryBlock, error) {
		jobs := make([]packJob, len(batch))
		for i, j := range batch {
			jobs[i] = packJob{
				locale: j.locale,
				path:   j.path,
				entry:  j.entry,
				index:  revpk.IndexDeltaCommon,
				store:  stores[j.stream],
			}
		}
		return p.runJobs(jobs, opts.threads(), opts.Verbose)
	}

	p := &Packer{Comp: comp, ContentRoot: contentRoot, Fallback: true}
	englishBlocks, err := runBatch(p, english)
	if err != nil {
		closeStores()
		return err
	}
	recorded := map[deltaKey]*revpk.EntryBlock{}
	for i, blk := range englishBlocks {
		if blk != nil {
			recorded[deltaKey{english[i].mapName, english[i].path}] = blk
		}
	}

	// non-english sources never fall back to the english content tree: a
	// missing source reuses the recorded english entry's descriptors instead
	// of re-packing the same bytes
	var packable []deltaJob
	for _, j := range others {
		if _, err := os.Stat(filepath.Join(contentRoot, j.locale, filepath.FromSlash(j.path))); err != nil {
			if eb := recorded[deltaKey{j.mapName, j.path}]; eb != nil {
				j.fill = eb
			} else {
				fmt.Fprintf(os.Stderr, "warning: skipping %s: no %s source and no english record\n", j.path, j.locale)
				continue
			}
		}
		packable = append(packable, j)
	}
	var toPack []deltaJob
	for _, j := range packable {
		if j.fill == nil {
			toPack = append(toPack, j)
		}
	}
	p2 := &Packer{Comp: comp, ContentRoot: contentRoot}
	otherBlocks, err := runBatch(p2, toPack)
	cerr := closeStores()
	if err != nil {
		return err
	}
	if cerr != nil {
		return cerr
	}

	// group entries per (locale, stream, effective map) in job order
	type dirKey struct {
		locale string
		stream string
		effMap string
	}
	groups := map[dirKey]*revpk.Dir{}
	var order []dirKey
	add := func(j deltaJob, blk *revpk.EntryBlock) {
		if blk == nil {
			return
		}
		k := dirKey{j.locale, j.stream, j.effMap}
		d := groups[k]
		if d == nil {
			d = &revpk.Dir{}
			groups[k] = d
			order = append(order, k)
		}
		e := *blk
		e.Index = revpk.IndexDeltaCommon
		d.Entries = append(d.Entries, e)
	}
	for i, blk := range englishBlocks {
		add(english[i], blk)
	}
	var next int
	for _, j := range packable {
		if j.fill != nil {
			add(j, j.fill)
		} else {
			add(j, otherBlocks[next])
			next++
		}
	}

	var files int
	for _, k := range order {
		d := groups[k]
		files += len(d.Entries)
		dirName := fmt.Sprintf("%s%s_%s.bsp.pak000_dir%s", k.locale, k.stream, k.effMap, revpk.Ext)
		if err := writeDirFile(d, filepath.Join(buildPath, dirName)); err != nil {
			return err
		}
	}

	var sharedBytes, sharedChunks uint64
	var total int64
	for _, s := range stores {
		sharedBytes += s.SharedBytes()
		sharedChunks += s.SharedChunks()
		total += s.Size()
	}
	fmt.Printf("packed %d files into %d delta-common directories (%s total, %s deduplicated in %d shared chunks) in %s\n",
		files, len(order),
		internal.FormatBytesSI(total),
		internal.FormatBytesSI(int64(sharedBytes)),
		sharedChunks,
		time.Since(start).Round(time.Millisecond))
	return nil
}
