// Package revpk reads and writes Respawn VPK directory files, providing
// byte-for-byte identical serialization/deserialization and validation (it
// will refuse to read or write invalid structs).
package revpk

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Respawn VPK constants.
const (
	Magic        uint32 = 0x55AA1234
	VersionMajor uint16 = 2
	VersionMinor uint16 = 3
	ChunkMaxSize uint64 = 0x100000
	chunkSep     uint16 = 0x0000
	chunkEnd     uint16 = 0xFFFF
)

func readLE(r io.Reader, v any) error  { return binary.Read(r, binary.LittleEndian, v) }
func writeLE(w io.Writer, v any) error { return binary.Write(w, binary.LittleEndian, v) }

// Directory parse errors, matched with errors.Is.
var (
	ErrBadHeader = errors.New("bad directory header")
	ErrTruncated = errors.New("truncated directory")
)

// truncated maps stream-end errors onto ErrTruncated so callers can tell a
// short file apart from a malformed one.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

// PackIndex identifies the data file an entry's chunks live in.
type PackIndex uint16

// IndexDeltaCommon is the reserved index for the multi-locale shared data
// file. It is resolved by name rather than by the pak000_NNN enumeration.
const IndexDeltaCommon PackIndex = 0x1337

func (i PackIndex) String() string {
	if i == IndexDeltaCommon {
		return "delta_common"
	}
	return fmt.Sprintf("%03d", uint16(i))
}

func (i PackIndex) GoString() string {
	if i == IndexDeltaCommon {
		return "IndexDeltaCommon"
	}
	return "PackIndex(" + strconv.FormatUint(uint64(i), 10) + ")"
}

// DirHeader is the fixed 16-byte header of a directory file. SignatureSize is
// always zero on write; a nonzero value on read means that many signature
// bytes follow the tree.
type DirHeader struct {
	Magic         uint32
	MajorVersion  uint16
	MinorVersion  uint16
	DirectorySize uint32
	SignatureSize uint32
}

// ChunkDescriptor describes one stored fragment of a logical file. When
// CompressedSize equals UncompressedSize the fragment is stored raw.
type ChunkDescriptor struct {
	LoadFlags        uint32 // same for all chunks of a file
	TextureFlags     uint16 // ^, only seen on VTFs
	Offset           uint64
	CompressedSize   uint64
	UncompressedSize uint64
}

// IsCompressed checks if the chunk is stored compressed.
func (c ChunkDescriptor) IsCompressed() bool {
	return c.CompressedSize != c.UncompressedSize
}

// IsPlaceholder reports whether the descriptor carries no data in this pack
// file (a dedup reference whose primary copy lives elsewhere).
func (c ChunkDescriptor) IsPlaceholder() bool {
	return c.Offset == 0 && c.CompressedSize == 0
}

// Deserialize parses a ChunkDescriptor from r.
func (c *ChunkDescriptor) Deserialize(r io.Reader) error {
	if err := readLE(r, &c.LoadFlags); err != nil {
		return fmt.Errorf("read chunk load flags: %w", truncated(err))
	}
	if err := readLE(r, &c.TextureFlags); err != nil {
		return fmt.Errorf("read chunk texture flags: %w", truncated(err))
	}
	if err := readLE(r, &c.Offset); err != nil {
		return fmt.Errorf("read chunk pack offset: %w", truncated(err))
	}
	if err := readLE(r, &c.CompressedSize); err != nil {
		return fmt.Errorf("read chunk compressed size: %w", truncated(err))
	}
	if err := readLE(r, &c.UncompressedSize); err != nil {
		return fmt.Errorf("read chunk uncompressed size: %w", truncated(err))
	}
	if c.UncompressedSize > ChunkMaxSize {
		return fmt.Errorf("read chunk uncompressed size: %d larger than %d", c.UncompressedSize, ChunkMaxSize)
	}
	if c.CompressedSize > c.UncompressedSize {
		return fmt.Errorf("read chunk compressed size: %d larger than uncompressed size %d", c.CompressedSize, c.UncompressedSize)
	}
	return nil
}

// Serialize writes an encoded ChunkDescriptor to w.
func (c ChunkDescriptor) Serialize(w io.Writer) error {
	if c.UncompressedSize > ChunkMaxSize {
		return fmt.Errorf("write chunk uncompressed size: %d larger than %d", c.UncompressedSize, ChunkMaxSize)
	}
	if c.CompressedSize > c.UncompressedSize {
		return fmt.Errorf("write chunk compressed size: %d larger than uncompressed size %d", c.CompressedSize, c.UncompressedSize)
	}
	if err := writeLE(w, c.LoadFlags); err != nil {
		return fmt.Errorf("write chunk load flags: %w", err)
	}
	if err := writeLE(w, c.TextureFlags); err != nil {
		return fmt.Errorf("write chunk texture flags: %w", err)
	}
	if err := writeLE(w, c.Offset); err != nil {
		return fmt.Errorf("write chunk pack offset: %w", err)
	}
	if err := writeLE(w, c.CompressedSize); err != nil {
		return fmt.Errorf("write chunk compressed size: %w", err)
	}
	if err := writeLE(w, c.UncompressedSize); err != nil {
		return fmt.Errorf("write chunk uncompressed size: %w", err)
	}
	return nil
}

// EntryBlock is the metadata describing one logical file: its checksum,
// preload bytes, pack index, and ordered fragment list.
type EntryBlock struct {
	Path    string
	CRC32   uint32 // Zlib CRC-32 of the reconstructed file
	Preload []byte
	Index   PackIndex
	Chunks  []ChunkDescriptor
}

// Size returns the reconstructed size of the file: preload plus the
// uncompressed sizes of every fragment.
func (b *EntryBlock) Size() uint64 {
	sz := uint64(len(b.Preload))
	for _, c := range b.Chunks {
		sz += c.UncompressedSize
	}
	return sz
}

// LoadFlags gets the load flags for the entry (0 when it has no fragments).
func (b *EntryBlock) LoadFlags() uint32 {
	if len(b.Chunks) == 0 {
		return 0
	}
	return b.Chunks[0].LoadFlags
}

// TextureFlags gets the texture flags for the entry (0 when it has no
// fragments).
func (b *EntryBlock) TextureFlags() uint16 {
	if len(b.Chunks) == 0 {
		return 0
	}
	return b.Chunks[0].TextureFlags
}

// IsCompressed reports whether any fragment is stored compressed.
func (b *EntryBlock) IsCompressed() bool {
	for _, c := range b.Chunks {
		if c.IsCompressed() {
			return true
		}
	}
	return false
}

// Deserialize parses an EntryBlock from r. The entry path is provided by the
// caller since it is encoded in the surrounding tree, not in the block.
func (b *EntryBlock) Deserialize(r io.Reader, path string) error {
	b.Path = path
	if err := readLE(r, &b.CRC32); err != nil {
		return fmt.Errorf("read entry crc32: %w", truncated(err))
	}
	var preloadSize uint16
	if err := readLE(r, &preloadSize); err != nil {
		return fmt.Errorf("read entry preload size: %w", truncated(err))
	}
	if err := readLE(r, &b.Index); err != nil {
		return fmt.Errorf("read entry pack index: %w", truncated(err))
	}
	if preloadSize != 0 {
		b.Preload = make([]byte, preloadSize)
		if _, err := io.ReadFull(r, b.Preload); err != nil {
			return fmt.Errorf("read entry preload bytes: %w", truncated(err))
		}
	}
	for {
		var c ChunkDescriptor
		if err := c.Deserialize(r); err != nil {
			return fmt.Errorf("read entry chunk: %w", err)
		}
		b.Chunks = append(b.Chunks, c)

		var sep uint16
		if err := readLE(r, &sep); err != nil {
			return fmt.Errorf("read entry chunk terminator: %w", truncated(err))
		}
		if sep == chunkEnd {
			break
		}
	}
	return nil
}

// Serialize writes an encoded EntryBlock to w.
func (b EntryBlock) Serialize(w io.Writer) error {
	if len(b.Chunks) == 0 {
		return fmt.Errorf("write entry %q: no chunks", b.Path)
	}
	if len(b.Preload) > 0xFFFF {
		return fmt.Errorf("write entry %q: preload larger than 64 KiB", b.Path)
	}
	if err := writeLE(w, b.CRC32); err != nil {
		return fmt.Errorf("write entry crc32: %w", err)
	}
	if err := writeLE(w, uint16(len(b.Preload))); err != nil {
		return fmt.Errorf("write entry preload size: %w", err)
	}
	if err := writeLE(w, b.Index); err != nil {
		return fmt.Errorf("write entry pack index: %w", err)
	}
	if len(b.Preload) != 0 {
		if _, err := w.Write(b.Preload); err != nil {
			return fmt.Errorf("write entry preload bytes: %w", err)
		}
	}
	for i, c := range b.Chunks {
		if err := c.Serialize(w); err != nil {
			return fmt.Errorf("write entry chunk: %w", err)
		}
		sep := chunkSep
		if i == len(b.Chunks)-1 {
			sep = chunkEnd
		}
		if err := writeLE(w, sep); err != nil {
			return fmt.Errorf("write entry chunk terminator: %w", err)
		}
	}
	return nil
}

// Dir is the root directory of a Respawn VPK.
type Dir struct {
	Header  DirHeader
	Path    string // filesystem path of the directory file, if known
	Entries []EntryBlock
}

// Indices returns the sorted set of pack indices referenced by the entries.
func (d *Dir) Indices() []PackIndex {
	seen := map[PackIndex]struct{}{}
	var out []PackIndex
	for _, b := range d.Entries {
		if _, ok := seen[b.Index]; !ok {
			seen[b.Index] = struct{}{}
			out = append(out, b.Index)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Deserialize parses a Dir from r.
func (d *Dir) Deserialize(r io.Reader) error {
	if err := readLE(r, &d.Header.Magic); err != nil {
		return fmt.Errorf("read dir magic: %w", truncated(err))
	} else if d.Header.Magic != Magic {
		return fmt.Errorf("%w: expected magic %08X, got %08X", ErrBadHeader, Magic, d.Header.Magic)
	}
	if err := readLE(r, &d.Header.MajorVersion); err != nil {
		return fmt.Errorf("read major version: %w", truncated(err))
	} else if err := readLE(r, &d.Header.MinorVersion); err != nil {
		return fmt.Errorf("read minor version: %w", truncated(err))
	} else if d.Header.MajorVersion != VersionMajor || d.Header.MinorVersion != VersionMinor {
		return fmt.Errorf("%w: unsupported dir version %d.%d (expected %d.%d)", ErrBadHeader, d.Header.MajorVersion, d.Header.MinorVersion, VersionMajor, VersionMinor)
	}
	if err := readLE(r, &d.Header.DirectorySize); err != nil {
		return fmt.Errorf("read directory size: %w", truncated(err))
	}
	if err := readLE(r, &d.Header.SignatureSize); err != nil {
		return fmt.Errorf("read signature size: %w", truncated(err))
	}
	b := bufio.NewReader(io.LimitReader(r, int64(d.Header.DirectorySize)))
	for {
		ext, err := readNullString(b)
		if err != nil {
			return fmt.Errorf("read tree extension: %w", truncated(err))
		}
		if ext == "" {
			break
		}
		for {
			dir, err := readNullString(b)
			if err != nil {
				return fmt.Errorf("read tree path: %w", truncated(err))
			}
			if dir == "" {
				break
			}
			for {
				name, err := readNullString(b)
				if err != nil {
					return fmt.Errorf("read tree name: %w", truncated(err))
				}
				if name == "" {
					break
				}
				var e EntryBlock
				if err := e.Deserialize(b, joinEntryPath(ext, dir, name)); err != nil {
					return fmt.Errorf("read tree entry %s/%s.%s: %w", dir, name, ext, err)
				}
				d.Entries = append(d.Entries, e)
			}
		}
	}
	if _, err := b.Peek(1); err != io.EOF {
		return fmt.Errorf("%w: tree ended before declared directory size %d", ErrTruncated, d.Header.DirectorySize)
	}
	// a signed directory carries its (ignored) signature after the tree
	if d.Header.SignatureSize != 0 {
		if _, err := io.CopyN(io.Discard, r, int64(d.Header.SignatureSize)); err != nil {
			return fmt.Errorf("skip signature: %w", truncated(err))
		}
	}
	return nil
}

// Serialize writes an encoded Dir to w. The output is byte-for-byte identical
// across runs for the same entries: extensions and paths are grouped in first
// appearance order, and the directory size is computed up front so the header
// is written exactly once.
func (d Dir) Serialize(w io.Writer) error {
	ts, err := d.TreeSize()
	if err != nil {
		return fmt.Errorf("calculate tree size: %w", err)
	}
	if err := writeLE(w, Magic); err != nil {
		return fmt.Errorf("write dir magic: %w", err)
	}
	if err := writeLE(w, VersionMajor); err != nil {
		return fmt.Errorf("write major version: %w", err)
	}
	if err := writeLE(w, VersionMinor); err != nil {
		return fmt.Errorf("write minor version: %w", err)
	}
	if err := writeLE(w, ts); err != nil {
		return fmt.Errorf("write directory size: %w", err)
	}
	if err := writeLE(w, uint32(0)); err != nil {
		return fmt.Errorf("write signature size: %w", err)
	}
	if err := d.writeTree(w); err != nil {
		return fmt.Errorf("write directory tree: %w", err)
	}
	return nil
}

// TreeSize returns the serialized size of the tree section.
func (d Dir) TreeSize() (uint32, error) {
	var b countWriter
	if err := d.writeTree(&b); err != nil {
		return 0, err
	}
	return uint32(b.N), nil
}

type countWriter struct {
	N int64
}

func (c *countWriter) Write(b []byte) (n int, err error) {
	n = len(b)
	c.N += int64(n)
	return
}

func (d Dir) writeTree(w io.Writer) error {
	type pathGroup struct {
		path    string
		entries []int
	}
	type extGroup struct {
		ext   string
		paths []*pathGroup
		byDir map[string]*pathGroup
	}
	var exts []*extGroup
	byExt := map[string]*extGroup{}
	for i := range d.Entries {
		ext, dir, _, err := splitEntryPath(d.Entries[i].Path)
		if err != nil {
			return err
		}
		eg := byExt[ext]
		if eg == nil {
			eg = &extGroup{ext: ext, byDir: map[string]*pathGroup{}}
			byExt[ext] = eg
			exts = append(exts, eg)
		}
		pg := eg.byDir[dir]
		if pg == nil {
			pg = &pathGroup{path: dir}
			eg.byDir[dir] = pg
			eg.paths = append(eg.paths, pg)
		}
		pg.entries = append(pg.entries, i)
	}
	for _, eg := range exts {
		if err := writeNullString(w, eg.ext); err != nil {
			return fmt.Errorf("start ext branch %s: %w", eg.ext, err)
		}
		for _, pg := range eg.paths {
			if err := writeNullString(w, pg.path); err != nil {
				return fmt.Errorf("start path branch %s/%s: %w", eg.ext, pg.path, err)
			}
			for _, i := range pg.entries {
				_, _, name, err := splitEntryPath(d.Entries[i].Path)
				if err != nil {
					return err
				}
				if err := writeNullString(w, name); err != nil {
					return fmt.Errorf("add file node %s/%s/%s: %w", eg.ext, pg.path, name, err)
				}
				if err := d.Entries[i].Serialize(w); err != nil {
					return fmt.Errorf("add file node %s/%s/%s: %w", eg.ext, pg.path, name, err)
				}
			}
			if _, err := w.Write([]byte{0}); err != nil {
				return fmt.Errorf("end path branch %s/%s: %w", eg.ext, pg.path, err)
			}
		}
		if _, err := w.Write([]byte{0}); err != nil {
			return fmt.Errorf("end ext branch %s: %w", eg.ext, err)
		}
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("end tree: %w", err)
	}
	return nil
}

// splitEntryPath splits an entry path into the three tree levels: the last
// '.' splits the extension, the last '/' splits the directory, and an empty
// directory becomes the " " root sentinel.
func splitEntryPath(p string) (ext, dir, name string, err error) {
	name = p
	if i := strings.LastIndex(name, "/"); i != -1 {
		dir, name = name[:i], name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i != -1 {
		name, ext = name[:i], name[i+1:]
	}
	if ext == "" {
		// an empty extension is indistinguishable from the branch terminator
		return "", "", "", fmt.Errorf("no extension for file %q", p)
	}
	if name == "" {
		return "", "", "", fmt.Errorf("no filename for file %q", p)
	}
	if dir == "" {
		dir = " "
	}
	return ext, dir, name, nil
}

// joinEntryPath is the inverse of splitEntryPath; the " " sentinel for dir
// means root.
func joinEntryPath(ext, dir, name string) string {
	p := name + "." + ext
	if dir != " " && dir != "" {
		p = dir + "/" + p
	}
	return p
}

func readNullString(r io.ByteReader) (string, error) {
	var s []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return string(s), err
		}
		if b == 0 {
			break
		}
		s = append(s, b)
	}
	return string(s), nil
}

func writeNullString(w io.Writer, s string) error {
	_, err := w.Write(append([]byte(s), 0))
	return err
}
