package sync

import (
	"strings"
	"testing"

	"github.com/alexbckr/sdk/internal/stepmodel"
	"github.com/stretchr/testify/require"
)

func bigEntity() *stepmodel.Entity {
	return &stepmodel.Entity{
		Key:  "e1",
		Type: "acme_widget",
		RawData: []stepmodel.RawDataEntry{
			{
				Name: "default",
				RawData: map[string]any{
					"big":   strings.Repeat("x", 6_500_000),
					"small": "ok",
				},
			},
		},
	}
}

func TestShrinkRawData_TruncatesLargestField(t *testing.T) {
	batch := []*stepmodel.Entity{bigEntity()}

	stats, err := ShrinkRawData(batch, UploadSizeMax)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ItemsRemoved)
	require.LessOrEqual(t, stats.TotalSize, UploadSizeMax)
	require.Equal(t, "TRUNCATED", batch[0].RawData[0].RawData["big"])
	require.Equal(t, "ok", batch[0].RawData[0].RawData["small"])

	size, err := jsonByteLength(batch)
	require.NoError(t, err)
	require.LessOrEqual(t, size, UploadSizeMax)
}

func TestShrinkRawData_IdempotentOnceUnderLimit(t *testing.T) {
	batch := []*stepmodel.Entity{bigEntity()}

	_, err := ShrinkRawData(batch, UploadSizeMax)
	require.NoError(t, err)

	stats, err := ShrinkRawData(batch, UploadSizeMax)
	require.NoError(t, err)
	require.Equal(t, 0, stats.ItemsRemoved)
}

func TestShrinkRawData_ErrorsWhenNoRawDataLeft(t *testing.T) {
	batch := []*stepmodel.Entity{
		{Key: "e1", Type: "acme_widget", Properties: map[string]any{"name": strings.Repeat("y", 10_000_000)}},
	}

	_, err := ShrinkRawData(batch, UploadSizeMax)
	require.Error(t, err)
	var shrinkErr *ShrinkError
	require.ErrorAs(t, err, &shrinkErr)
	require.Equal(t, CodeIntegrationUploadFailed, shrinkErr.Code)
}

func TestShrinkRawData_MultipleEntitiesPicksLargest(t *testing.T) {
	small := &stepmodel.Entity{
		Key:  "small",
		Type: "acme_widget",
		RawData: []stepmodel.RawDataEntry{
			{Name: "default", RawData: map[string]any{"data": strings.Repeat("a", 1000)}},
		},
	}
	batch := []*stepmodel.Entity{small, bigEntity()}

	stats, err := ShrinkRawData(batch, UploadSizeMax)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ItemsRemoved)
	require.Equal(t, strings.Repeat("a", 1000), small.RawData[0].RawData["data"], "the smaller entity must be untouched")
	require.Equal(t, "TRUNCATED", batch[1].RawData[0].RawData["big"])
}
