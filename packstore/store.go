// Package packstore builds and extracts Respawn VPK archives: the chunked,
// content-addressed packing pipeline, its inverse, and the multi-locale
// variants sharing one deduplicated data file.
package packstore

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/r1tools/revpk"
)

// Options are shared knobs for pack and unpack operations.
type Options struct {
	Threads int // worker count; <= 0 means NumCPU-1, minimum 1
	Verbose bool
}

func (o Options) threads() int {
	if o.Threads > 0 {
		return o.Threads
	}
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// Fingerprint returns the content-addressed key of a stored chunk: the 64-bit
// xxHash of its post-codec bytes, hex encoded. Chunks with equal fingerprints
// are treated as equal; collisions are not mitigated.
func Fingerprint(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// ChunkStore is an append-only writer over a single data file combined with
// the in-memory fingerprint index used for deduplication. It is shared by all
// concurrent pack tasks of an operation: offsets are reserved with an atomic
// fetch-add and chunks written positionally, so writers never serialize on
// the I/O itself, and the index critical section covers only the
// lookup-or-insert.
type ChunkStore struct {
	f   *os.File
	off atomic.Int64

	mu    sync.Mutex
	index map[string]revpk.ChunkDescriptor

	sharedBytes  atomic.Uint64
	sharedChunks atomic.Uint64
}

// Create opens a new data file for writing.
func Create(path string) (*ChunkStore, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create data file: %w", err)
	}
	return &ChunkStore{f: f, index: map[string]revpk.ChunkDescriptor{}}, nil
}

// Put stores a chunk's post-codec bytes and returns its canonical descriptor.
// The first writer of a fingerprint reserves an offset, records the template
// descriptor with Offset and CompressedSize filled in, and writes the bytes;
// every later identical chunk gets the recorded descriptor back unchanged.
func (s *ChunkStore) Put(final []byte, tmpl revpk.ChunkDescriptor) (revpk.ChunkDescriptor, error) {
	fp := Fingerprint(final)

	s.mu.Lock()
	if d, ok := s.index[fp]; ok {
		s.mu.Unlock()
		s.sharedBytes.Add(d.UncompressedSize)
		s.sharedChunks.Add(1)
		return d, nil
	}
	off := s.off.Add(int64(len(final))) - int64(len(final))
	tmpl.Offset = uint64(off)
	tmpl.CompressedSize = uint64(len(final))
	s.index[fp] = tmpl
	s.mu.Unlock()

	if _, err := s.f.WriteAt(final, off); err != nil {
		return tmpl, fmt.Errorf("write chunk at offset %d: %w", off, err)
	}
	return tmpl, nil
}

// Size returns the logical size of the data file so far.
func (s *ChunkStore) Size() int64 {
	return s.off.Load()
}

// SharedBytes returns the uncompressed bytes saved by deduplication.
func (s *ChunkStore) SharedBytes() uint64 {
	return s.sharedBytes.Load()
}

// SharedChunks returns the number of deduplicated chunk references.
func (s *ChunkStore) SharedChunks() uint64 {
	return s.sharedChunks.Load()
}

// Close flushes and closes the data file.
func (s *ChunkStore) Close() error {
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("sync data file: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close data file: %w", err)
	}
	return nil
}

// parallel runs fn(worker, i) for every i in [0, n) on up to threads
// workers. The worker id lets tasks reuse per-worker scratch state.
func parallel(n, threads int, fn func(worker, i int)) {
	if threads > n {
		threads = n
	}
	if threads < 1 {
		threads = 1
	}
	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < threads; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= n {
					return
				}
				fn(worker, i)
			}
		}(w)
	}
	wg.Wait()
}
