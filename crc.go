package revpk

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// Entry checksums are the Zlib CRC-32, i.e. the IEEE reflected polynomial
// implemented by hash/crc32.

// NewCRC returns a streaming entry checksum.
func NewCRC() hash.Hash32 {
	return crc32.NewIEEE()
}

// Checksum computes the entry checksum of b in one shot.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// CRCWriter tees writes into an entry checksum so reconstructed output can be
// verified against the directory's recorded CRC.
type CRCWriter struct {
	w io.Writer
	h hash.Hash32
	n uint64
}

func NewCRCWriter(w io.Writer) *CRCWriter {
	return &CRCWriter{w: w, h: NewCRC()}
}

func (c *CRCWriter) Write(b []byte) (n int, err error) {
	n, err = c.w.Write(b)
	_, _ = c.h.Write(b[:n])
	c.n += uint64(n)
	return
}

// Sum32 returns the checksum of everything written so far.
func (c *CRCWriter) Sum32() uint32 {
	return c.h.Sum32()
}

// Verify checks the written byte count and checksum against an entry block.
func (c *CRCWriter) Verify(b *EntryBlock) error {
	if c.n != b.Size() {
		return fmt.Errorf("size mismatch for %q: expected %d, got %d", b.Path, b.Size(), c.n)
	}
	if s := c.h.Sum32(); s != b.CRC32 {
		return fmt.Errorf("crc mismatch for %q: expected %08X, got %08X", b.Path, b.CRC32, s)
	}
	return nil
}
