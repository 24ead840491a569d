package crawler

import (
	"errors"
	"fmt"
	"os"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"
)

const (
	// Discovered links outnumber fetched pages, so the filter is sized for
	// a multiple of the page budget.
	linksPerPage      = 20
	minTrackedPages   = 1000
	falsePositiveRate = 0.001
	// flushInterval is how many new URLs accumulate before the filter is
	// written back to its mapped file.
	flushInterval = 1000
)

// VisitedTracker remembers which normalized page URLs a crawl has claimed,
// so each page is fetched at most once. Membership lives in a bloom filter
// whose serialized form is mirrored into a memory-mapped temp file.
// False positives are possible; a page that is wrongly reported as seen is
// simply not crawled.
type VisitedTracker struct {
	mu      sync.Mutex
	filter  *bloom.BloomFilter
	backing *mmapBacking
	claimed uint64 // URLs added over the tracker's lifetime
	dirty   uint64 // URLs added since the last flush
	lastErr error  // Last flush failure
}

// NewVisitedTracker creates a tracker sized for a crawl of maxPages pages.
func NewVisitedTracker(maxPages int) (*VisitedTracker, error) {
	capacity := uint(max(maxPages, minTrackedPages)) * linksPerPage
	filter := bloom.NewWithEstimates(capacity, falsePositiveRate)

	// Bit set bytes plus room for the serialized header words.
	backing, err := newMMapBacking(int(filter.Cap()/8) + 64)
	if err != nil {
		return nil, err
	}

	tracker := &VisitedTracker{filter: filter, backing: backing}
	if err := tracker.flushLocked(); err != nil {
		_ = backing.release()
		return nil, err
	}
	return tracker, nil
}

// VisitIfNew marks pageURL as seen and reports whether this call was the
// first to do so.
func (t *VisitedTracker) VisitIfNew(pageURL string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.filter.TestString(pageURL) {
		return false
	}
	t.filter.AddString(pageURL)
	t.claimed++
	t.dirty++
	if t.dirty >= flushInterval {
		if err := t.flushLocked(); err != nil {
			t.lastErr = err
		}
	}
	return true
}

// Claimed returns how many URLs have been added.
func (t *VisitedTracker) Claimed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.claimed
}

// LastError returns the most recent failure to flush the filter to disk.
// Flushes happen inside VisitIfNew, which has no error return, so failures
// are kept here.
func (t *VisitedTracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Close flushes pending URLs and removes the backing file. Earlier flush
// failures are reported by LastError, not here. Closing twice is a no-op.
func (t *VisitedTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.backing == nil {
		return nil
	}

	var errs []error
	if t.dirty > 0 {
		if err := t.flushLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.backing.release(); err != nil {
		errs = append(errs, err)
	}
	t.backing = nil

	if len(errs) > 0 {
		return fmt.Errorf("close visited tracker: %w", errors.Join(errs...))
	}
	return nil
}

// flushLocked writes the serialized filter into the mapped region.
func (t *VisitedTracker) flushLocked() error {
	data, err := t.filter.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal bloom filter: %w", err)
	}
	if len(data) > len(t.backing.region) {
		return fmt.Errorf("bloom filter (%d bytes) exceeds mapped file (%d bytes)", len(data), len(t.backing.region))
	}
	copy(t.backing.region, data)
	if err := t.backing.region.Flush(); err != nil {
		return fmt.Errorf("flush mmap: %w", err)
	}
	t.dirty = 0
	return nil
}

// mmapBacking is a temp file mapped read-write into memory.
type mmapBacking struct {
	file   *os.File
	region mmap.MMap
}

func newMMapBacking(size int) (*mmapBacking, error) {
	file, err := os.CreateTemp("", "zombietrail-visited-*.bloom")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	fail := func(err error) (*mmapBacking, error) {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, err
	}

	if err := file.Truncate(int64(size)); err != nil {
		return fail(fmt.Errorf("truncate temp file: %w", err))
	}
	region, err := mmap.MapRegion(file, size, mmap.RDWR, 0, 0)
	if err != nil {
		return fail(fmt.Errorf("mmap temp file: %w", err))
	}
	return &mmapBacking{file: file, region: region}, nil
}

// release unmaps the region, closes the file and deletes it.
func (b *mmapBacking) release() error {
	var errs []error
	if err := b.region.Unmap(); err != nil {
		errs = append(errs, fmt.Errorf("unmap: %w", err))
	}
	if err := b.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close file: %w", err))
	}
	if err := os.Remove(b.file.Name()); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove temp file: %w", err))
	}
	return errors.Join(errs...)
}
