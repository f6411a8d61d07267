package scraper

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"
)

const (
	seenCapacity  = 100000
	seenFalseRate = 0.001
)

// SeenSet remembers URLs for one extraction. Its bloom filter bits live in a
// memory-mapped temporary file rather than on the Go heap; a filter hit is
// confirmed against the exact keys, so a false positive never drops a URL.
type SeenSet struct {
	mu      sync.Mutex
	filter  *bloom.BloomFilter
	keys    map[string]struct{}
	file    *os.File
	mapped  mmap.MMap
	tmpPath string
}

// NewSeenSet creates a SeenSet backed by a file in the OS temp directory.
func NewSeenSet() (*SeenSet, error) {
	return newSeenSet(seenCapacity, seenFalseRate)
}

func newSeenSet(capacity uint, falseRate float64) (*SeenSet, error) {
	m, k := bloom.EstimateParameters(capacity, falseRate)
	words := (max(m, 1) + 63) / 64
	size := int(words * 8)

	tmpFile, err := os.CreateTemp("", "imagegrab-seen-*.bloom")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	cleanup := func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}

	if err := tmpFile.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("truncate temp file: %w", err)
	}

	mapped, err := mmap.MapRegion(tmpFile, size, mmap.RDWR, 0, 0)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("mmap temp file: %w", err)
	}

	// The mapping is page aligned, so it can be viewed as words in place.
	bits := unsafe.Slice((*uint64)(unsafe.Pointer(&mapped[0])), words)

	return &SeenSet{
		filter:  bloom.FromWithM(bits, m, k),
		keys:    make(map[string]struct{}),
		file:    tmpFile,
		mapped:  mapped,
		tmpPath: tmpPath,
	}, nil
}

// AddIfNew records key and reports whether it was absent before.
func (s *SeenSet) AddIfNew(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filter.TestAndAddString(key) {
		if _, ok := s.keys[key]; ok {
			return false
		}
	}
	s.keys[key] = struct{}{}
	return true
}

// Contains reports whether key was added.
func (s *SeenSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.filter.TestString(key) {
		return false
	}
	_, ok := s.keys[key]
	return ok
}

// Close unmaps and removes the backing file. It is safe to call twice.
func (s *SeenSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.mapped != nil {
		// The filter points into the mapping; drop it before unmapping.
		s.filter = bloom.New(1, 1)
		if err := s.mapped.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap: %w", err))
		}
		s.mapped = nil
	}

	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close file: %w", err))
		}
		s.file = nil
	}

	if s.tmpPath != "" {
		if err := os.Remove(s.tmpPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove temp file: %w", err))
		}
		s.tmpPath = ""
	}

	if len(errs) > 0 {
		return fmt.Errorf("close seen set: %w", errors.Join(errs...))
	}
	return nil
}
