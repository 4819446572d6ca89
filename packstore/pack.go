package packstore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/r1tools/revpk"
	"github.com/r1tools/revpk/codec"
	"github.com/r1tools/revpk/internal"
	"github.com/r1tools/revpk/manifest"
)

// Pack-time source errors. Both are warn-and-skip: the overall operation
// still succeeds when individual sources are missing or empty.
var (
	ErrMissingSource = errors.New("missing source file")
	ErrEmptySource   = errors.New("empty source file")
)

// Packer turns source files into packed entry blocks: read, split into
// chunks, optionally compress, deduplicate-or-append through a ChunkStore.
type Packer struct {
	Comp        *codec.Compressor
	ContentRoot string // <workspace>/content
	Fallback    bool   // fall back to the english content tree on a missing source
}

// packScratch is the per-worker compression buffer, allocated on first use
// and dropped when the worker ends.
type packScratch struct {
	comp []byte
}

func (p *Packer) resolve(locale, entryPath string) (string, error) {
	rel := filepath.FromSlash(entryPath)
	path := filepath.Join(p.ContentRoot, locale, rel)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if p.Fallback && locale != revpk.DefaultLocale {
		path = filepath.Join(p.ContentRoot, revpk.DefaultLocale, rel)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s (locale %s)", ErrMissingSource, entryPath, locale)
}

// PackFile packs one source file into store and returns its entry block.
func (p *Packer) PackFile(store *ChunkStore, locale, entryPath string, e manifest.Entry, idx revpk.PackIndex, sc *packScratch) (*revpk.EntryBlock, error) {
	src, err := p.resolve(locale, entryPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMissingSource, src, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, src)
	}

	blk := &revpk.EntryBlock{
		Path:  entryPath,
		Index: idx,
		CRC32: revpk.Checksum(data),
	}
	rest := data
	if e.PreloadSize > 0 && int(e.PreloadSize) <= len(data) {
		blk.Preload = append([]byte(nil), data[:e.PreloadSize]...)
		rest = data[e.PreloadSize:]
	}
	for len(rest) > 0 {
		n := len(rest)
		if uint64(n) > revpk.ChunkMaxSize {
			n = int(revpk.ChunkMaxSize)
		}
		raw := rest[:n]
		rest = rest[n:]

		final := raw
		if e.UseCompression {
			if out, ok := p.Comp.Compress(sc.comp, raw); ok {
				final = out
			}
		}
		d, err := store.Put(final, revpk.ChunkDescriptor{
			LoadFlags:        e.LoadFlags,
			TextureFlags:     e.TextureFlags,
			UncompressedSize: uint64(len(raw)),
		})
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", entryPath, err)
		}
		blk.Chunks = append(blk.Chunks, d)
	}
	if len(blk.Chunks) == 0 {
		// the preload consumed the whole file; a zero descriptor keeps the
		// block representable and is skipped on unpack
		blk.Chunks = append(blk.Chunks, revpk.ChunkDescriptor{
			LoadFlags:    e.LoadFlags,
			TextureFlags: e.TextureFlags,
		})
	}
	return blk, nil
}

// packJob is one file to pack: which locale's tree to read from, which store
// to write into, and which pack index the entry records.
type packJob struct {
	locale string
	path   string
	entry  manifest.Entry
	index  revpk.PackIndex
	store  *ChunkStore
}

// runJobs packs all jobs on the worker pool. Missing and empty sources are
// warned and skipped, leaving a nil block; any other error fails the
// operation after all tasks have finished.
func (p *Packer) runJobs(jobs []packJob, threads int, verbose bool) ([]*revpk.EntryBlock, error) {
	blocks := make([]*revpk.EntryBlock, len(jobs))
	errs := make([]error, len(jobs))
	scratch := make([]*packScratch, threads)
	parallel(len(jobs), threads, func(w, i int) {
		if scratch[w] == nil {
			scratch[w] = &packScratch{comp: make([]byte, revpk.ChunkMaxSize)}
		}
		j := jobs[i]
		blk, err := p.PackFile(j.store, j.locale, j.path, j.entry, j.index, scratch[w])
		if err != nil {
			if errors.Is(err, ErrMissingSource) || errors.Is(err, ErrEmptySource) {
				fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", j.path, err)
				return
			}
			errs[i] = err
			return
		}
		if verbose {
			fmt.Printf("[%4d/%4d] %s (%s)\n", i+1, len(jobs), j.path, internal.FormatBytesSI(int64(blk.Size())))
		}
		blocks[i] = blk
	})
	for _, err := range errs {
		if err != nil {
			return blocks, err
		}
	}
	return blocks, nil
}

// PackSingle packs one locale's manifest into a data file and directory file
// pair under buildPath.
func PackSingle(locale, target, level string, cfg codec.Config, workspace, buildPath string, opts Options) error {
	start := time.Now()
	packName, dirName := revpk.Pair(locale, target, level, 0)

	build, err := manifest.Load(filepath.Join(workspace, "manifest", revpk.DirBaseName(dirName)+".vdf"))
	if err != nil {
		return err
	}
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

	p := &Packer{Comp: comp, ContentRoot: filepath.Join(workspace, "content"), Fallback: true}
	paths := build.Paths()
	jobs := make([]packJob, len(paths))
	for i, ep := range paths {
		jobs[i] = packJob{locale: locale, path: ep, entry: build.Entries[ep], store: store}
	}
	blocks, err := p.runJobs(jobs, opts.threads(), opts.Verbose)
	cerr := store.Close()
	if err != nil {
		return err
	}
	if cerr != nil {
		return cerr
	}

	dir := &revpk.Dir{}
	for _, b := range blocks {
		if b != nil {
			dir.Entries = append(dir.Entries, *b)
		}
	}
	if err := writeDirFile(dir, filepath.Join(buildPath, dirName)); err != nil {
		return err
	}

	fmt.Printf("packed %d files into %s (%s total, %s deduplicated in %d shared chunks) in %s\n",
		len(dir.Entries), packName,
		internal.FormatBytesSI(store.Size()),
		internal.FormatBytesSI(int64(store.SharedBytes())),
		store.SharedChunks(),
		time.Since(start).Round(time.Millisecond))
	return nil
}

func writeDirFile(dir *revpk.Dir, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create directory file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := dir.Serialize(w); err != nil {
		return fmt.Errorf("write directory file %q: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write directory file %q: %w", path, err)
	}
	dir.Path = path
	return f.Close()
}
