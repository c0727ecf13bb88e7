package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ExposureWindowRetentionDays is how long a reported window is remembered for deduplication
const ExposureWindowRetentionDays = 15

// WindowHasher fingerprints an exposure window. Implementations must return
// the same digest for the same window data in every process.
type WindowHasher func(ExposureWindow) (string, error)

// SHA256WindowHasher hashes the JSON encoding of the window with its date
// normalized to UTC
func SHA256WindowHasher(w ExposureWindow) (string, error) {
	w.Date = w.Date.UTC()
	data, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DedupResult is the outcome of one deduplication pass
type DedupResult struct {
	Metadata   *ExposureWindowsMetadata
	Added      int
	Duplicates int
	Purged     int
	Unhashed   int
}

// WindowDeduplicator decides which observed exposure windows have not been reported yet
type WindowDeduplicator struct {
	hasher WindowHasher
}

// NewWindowDeduplicator creates a deduplicator. A nil hasher selects SHA256WindowHasher.
func NewWindowDeduplicator(hasher WindowHasher) *WindowDeduplicator {
	if hasher == nil {
		hasher = SHA256WindowHasher
	}
	return &WindowDeduplicator{hasher: hasher}
}

// Process folds observed windows into the stored metadata.
//
// The result is always usable. A non-nil error wraps ErrEncodingFailed for
// windows that could not be hashed; those windows are queued for submission
// without a hash and never enter the reported queue.
func (d *WindowDeduplicator) Process(stored *ExposureWindowsMetadata, observed []ScoredExposureWindow, now time.Time) (*DedupResult, error) {
	mapped, hashErrs := d.mapWindows(observed)
	result := &DedupResult{}

	if stored == nil {
		next := &ExposureWindowsMetadata{
			NewExposureWindowsQueue:      []SubmissionExposureWindow{},
			ReportedExposureWindowsQueue: []SubmissionExposureWindow{},
		}
		d.appendUnreported(next, mapped, map[string]struct{}{}, result)
		result.Metadata = next
		return result, errors.Join(hashErrs...)
	}

	next := &ExposureWindowsMetadata{
		NewExposureWindowsQueue:      append([]SubmissionExposureWindow{}, stored.NewExposureWindowsQueue...),
		ReportedExposureWindowsQueue: make([]SubmissionExposureWindow, 0, len(stored.ReportedExposureWindowsQueue)),
	}

	seen := make(map[string]struct{}, len(stored.ReportedExposureWindowsQueue))
	for _, w := range stored.ReportedExposureWindowsQueue {
		if expired(w, now) {
			result.Purged++
			continue
		}
		next.ReportedExposureWindowsQueue = append(next.ReportedExposureWindowsQueue, w)
		seen[w.Hash] = struct{}{}
	}

	d.appendUnreported(next, mapped, seen, result)
	result.Metadata = next
	return result, errors.Join(hashErrs...)
}

func (d *WindowDeduplicator) mapWindows(observed []ScoredExposureWindow) ([]SubmissionExposureWindow, []error) {
	var errs []error
	mapped := make([]SubmissionExposureWindow, 0, len(observed))
	for i, o := range observed {
		hash, err := d.hasher(o.Window)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: exposure window %d: %v", ErrEncodingFailed, i, err))
			hash = ""
		}
		mapped = append(mapped, SubmissionExposureWindow{
			ExposureWindow:        o.Window,
			TransmissionRiskLevel: o.TransmissionRiskLevel,
			NormalizedTime:        o.NormalizedTime,
			Hash:                  hash,
			Date:                  o.Window.Date,
		})
	}
	return mapped, errs
}

// appendUnreported queues every window whose hash is not in seen, updating
// seen so that duplicates within one batch are queued once
func (d *WindowDeduplicator) appendUnreported(next *ExposureWindowsMetadata, mapped []SubmissionExposureWindow, seen map[string]struct{}, result *DedupResult) {
	for _, w := range mapped {
		if w.Hash == "" {
			next.NewExposureWindowsQueue = append(next.NewExposureWindowsQueue, w)
			result.Unhashed++
			continue
		}
		if _, ok := seen[w.Hash]; ok {
			result.Duplicates++
			continue
		}
		seen[w.Hash] = struct{}{}
		next.NewExposureWindowsQueue = append(next.NewExposureWindowsQueue, w)
		next.ReportedExposureWindowsQueue = append(next.ReportedExposureWindowsQueue, w)
		result.Added++
	}
}

func expired(w SubmissionExposureWindow, now time.Time) bool {
	if w.Date.IsZero() {
		return true
	}
	return daysBetween(w.Date, now) >= ExposureWindowRetentionDays
}
