package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexbckr/sdk/internal/stepmodel"
)

// ShrinkStats reports what ShrinkRawData did.
type ShrinkStats struct {
	InitialSize  int
	TotalSize    int
	ItemsRemoved int
	TotalTime    time.Duration
}

// ShrinkRawData reduces batch's JSON-serialized size below maxSize (or
// UploadSizeMax, if maxSize is non-positive) by truncating large raw-data
// fields in place: it repeatedly finds the largest entity, the largest
// _rawData entry within it, and the largest field within that entry's
// rawData map, replaces the field's value with the literal string
// "TRUNCATED", and recomputes the running total incrementally rather than
// re-marshaling the whole batch each iteration.
//
// Mutation is in place; the caller retries the upload with the same batch.
// ShrinkRawData is idempotent once totalSize <= maxSize: a second call
// returns ItemsRemoved = 0.
func ShrinkRawData(batch []*stepmodel.Entity, maxSize int) (ShrinkStats, error) {
	start := time.Now()
	if maxSize <= 0 {
		maxSize = UploadSizeMax
	}

	totalSize, err := jsonByteLength(batch)
	if err != nil {
		return ShrinkStats{}, fmt.Errorf("measuring batch size: %w", err)
	}
	stats := ShrinkStats{InitialSize: totalSize}

	truncatedSize, err := jsonByteLength("TRUNCATED")
	if err != nil {
		return stats, err
	}

	for totalSize > maxSize {
		entityIdx, err := largestEntityIndex(batch)
		if err != nil {
			return stats, fmt.Errorf("measuring entity sizes: %w", err)
		}
		entity := batch[entityIdx]

		if len(entity.RawData) == 0 {
			stats.TotalSize = totalSize
			stats.TotalTime = time.Since(start)
			return stats, &ShrinkError{
				Code:    CodeIntegrationUploadFailed,
				Message: fmt.Sprintf("cannot shrink batch below size limit: entity %q has no _rawData left to truncate", entity.Key),
			}
		}

		entryIdx, err := largestRawDataEntryIndex(entity.RawData)
		if err != nil {
			return stats, fmt.Errorf("measuring raw data entry sizes: %w", err)
		}
		entry := &entity.RawData[entryIdx]

		if len(entry.RawData) == 0 {
			stats.TotalSize = totalSize
			stats.TotalTime = time.Since(start)
			return stats, &ShrinkError{
				Code:    CodeIntegrationUploadFailed,
				Message: fmt.Sprintf("cannot shrink batch below size limit: entity %q's raw data entry %q is empty", entity.Key, entry.Name),
			}
		}

		fieldKey, oldFieldSize, err := largestField(entry.RawData)
		if err != nil {
			return stats, fmt.Errorf("measuring raw data field sizes: %w", err)
		}

		entry.RawData[fieldKey] = "TRUNCATED"
		totalSize = totalSize - oldFieldSize + truncatedSize
		stats.ItemsRemoved++
	}

	stats.TotalSize = totalSize
	stats.TotalTime = time.Since(start)
	return stats, nil
}

func jsonByteLength(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func largestEntityIndex(batch []*stepmodel.Entity) (int, error) {
	best := -1
	bestSize := -1
	for i, e := range batch {
		size, err := jsonByteLength(e)
		if err != nil {
			return 0, err
		}
		if size > bestSize {
			bestSize = size
			best = i
		}
	}
	return best, nil
}

func largestRawDataEntryIndex(entries []stepmodel.RawDataEntry) (int, error) {
	best := -1
	bestSize := -1
	for i, entry := range entries {
		size, err := jsonByteLength(entry)
		if err != nil {
			return 0, err
		}
		if size > bestSize {
			bestSize = size
			best = i
		}
	}
	return best, nil
}

func largestField(rawData map[string]any) (string, int, error) {
	var bestKey string
	bestSize := -1
	for key, value := range rawData {
		size, err := jsonByteLength(value)
		if err != nil {
			return "", 0, err
		}
		if size > bestSize {
			bestSize = size
			bestKey = key
		}
	}
	return bestKey, bestSize, nil
}
