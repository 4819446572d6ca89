package packstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/r1tools/revpk"
	"github.com/r1tools/revpk/codec"
	"github.com/r1tools/revpk/internal"
	"github.com/r1tools/revpk/manifest"
)

// ParseDirFile reads and parses a directory file, recording its path so pack
// file names can be resolved relative to it.
func ParseDirFile(path string) (*revpk.Dir, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open directory file: %w", err)
	}
	defer f.Close()
	dir := &revpk.Dir{Path: path}
	if err := dir.Deserialize(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("parse directory file %q: %w", path, err)
	}
	return dir, nil
}

// Unpacker extracts entries from parsed directories. Tasks are independent
// per entry block; each owns its own file handles and decode scratch.
type Unpacker struct {
	Comp    *codec.Compressor
	Verbose bool
}

type unpackScratch struct {
	src []byte
	dst []byte
}

// unpackEntry reconstructs one entry under outRoot. Per-fragment codec
// failures are logged and skipped, leaving the output truncated; anything
// else fails the task.
func (u *Unpacker) unpackEntry(dir *revpk.Dir, b *revpk.EntryBlock, outRoot string, sc *unpackScratch) error {
	outPath := filepath.Join(outRoot, filepath.FromSlash(b.Path))
	if err := os.MkdirAll(filepath.Dir(outPath), 0777); err != nil {
		return fmt.Errorf("create output directory for %q: %w", b.Path, err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file for %q: %w", b.Path, err)
	}
	defer out.Close()

	cw := revpk.NewCRCWriter(out)
	if len(b.Preload) != 0 {
		if _, err := cw.Write(b.Preload); err != nil {
			return fmt.Errorf("write preload for %q: %w", b.Path, err)
		}
	}

	var data *os.File
	defer func() {
		if data != nil {
			data.Close()
		}
	}()
	for ci, c := range b.Chunks {
		if c.IsPlaceholder() {
			continue
		}
		if data == nil {
			name, err := revpk.PackFileName(filepath.Base(dir.Path), b.Index)
			if err != nil {
				return fmt.Errorf("unpack %q: %w", b.Path, err)
			}
			if data, err = os.Open(filepath.Join(filepath.Dir(dir.Path), name)); err != nil {
				return fmt.Errorf("unpack %q: open data file: %w", b.Path, err)
			}
		}
		if uint64(cap(sc.src)) < c.CompressedSize {
			sc.src = make([]byte, c.CompressedSize)
		}
		src := sc.src[:c.CompressedSize]
		if _, err := data.ReadAt(src, int64(c.Offset)); err != nil {
			return fmt.Errorf("unpack %q: read chunk %d: %w", b.Path, ci, err)
		}
		if !c.IsCompressed() {
			if _, err := cw.Write(src); err != nil {
				return fmt.Errorf("unpack %q: write chunk %d: %w", b.Path, ci, err)
			}
			continue
		}
		dst, err := u.Comp.Decompress(sc.dst, src, c.UncompressedSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s: chunk %d: %v\n", b.Path, ci, err)
			continue
		}
		sc.dst = dst[:0]
		if _, err := cw.Write(dst); err != nil {
			return fmt.Errorf("unpack %q: write chunk %d: %w", b.Path, ci, err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("unpack %q: close output: %w", b.Path, err)
	}
	if err := cw.Verify(b); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return nil
}

// unpackEntries extracts the selected entries of dir under outRoot in
// parallel. Per-entry failures are logged; the returned error reports how
// many tasks failed once all have run.
func (u *Unpacker) unpackEntries(dir *revpk.Dir, entries []int, outRoot string, threads int) error {
	var failed int
	errs := make([]error, len(entries))
	scratch := make([]*unpackScratch, threads)
	parallel(len(entries), threads, func(w, i int) {
		if scratch[w] == nil {
			scratch[w] = &unpackScratch{}
		}
		b := &dir.Entries[entries[i]]
		if u.Verbose {
			fmt.Printf("[%4d/%4d] %s (%s)\n", i+1, len(entries), b.Path, internal.FormatBytesSI(int64(b.Size())))
		}
		errs[i] = u.unpackEntry(dir, b, outRoot, scratch[w])
	})
	for _, err := range errs {
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			failed++
		}
	}
	if failed != 0 {
		return fmt.Errorf("unpack: %d of %d entries failed", failed, len(entries))
	}
	return nil
}

// Unpack extracts every entry of a parsed directory under outRoot and
// regenerates the build manifest that would produce it.
func Unpack(dir *revpk.Dir, outRoot string, opts Options) error {
	start := time.Now()
	if err := os.MkdirAll(outRoot, 0777); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := writeDirManifest(dir, outRoot); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	comp, err := codec.New(codec.Config{})
	if err != nil {
		return err
	}
	u := &Unpacker{Comp: comp, Verbose: opts.Verbose}
	entries := make([]int, len(dir.Entries))
	for i := range entries {
		entries[i] = i
	}
	if err := u.unpackEntries(dir, entries, outRoot, opts.threads()); err != nil {
		return err
	}
	fmt.Printf("unpacked %d files from %s in %s\n",
		len(dir.Entries), filepath.Base(dir.Path), time.Since(start).Round(time.Millisecond))
	return nil
}

// writeDirManifest regenerates <outRoot>/manifest/<base>.vdf from a parsed
// directory so an unpacked tree can be repacked as-is.
func writeDirManifest(dir *revpk.Dir, outRoot string) error {
	if err := os.MkdirAll(filepath.Join(outRoot, "manifest"), 0777); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	return buildFromDir(dir).Save(filepath.Join(outRoot, "manifest", revpk.DirBaseName(dir.Path)+".vdf"))
}

func buildFromDir(dir *revpk.Dir) *manifest.Build {
	b := &manifest.Build{Entries: map[string]manifest.Entry{}}
	for i := range dir.Entries {
		e := &dir.Entries[i]
		b.Entries[e.Path] = manifest.FromEntryBlock(e)
	}
	return b
}
