package statistics

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCompression(t *testing.T) {
	s := NewStatistics()
	s.RecordCompression(1000, 400, 3)
	s.RecordCompression(1000, 1200, 2)

	assert.Equal(t, int64(2), s.FilesCompressed)
	assert.Equal(t, int64(1), s.FilesGrown)
	assert.Equal(t, int64(5), s.FramesProcessed)
	assert.Equal(t, int64(2000), s.BytesIn)
	assert.Equal(t, int64(1600), s.BytesOut)
	assert.InDelta(t, 0.2, s.Reduction(), 1e-9)
}

func TestStart_ConcurrentWithSnapshot(t *testing.T) {
	s := NewStatistics()
	s.Finalize()
	require.False(t, s.Snapshot().EndTime.IsZero())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s.Snapshot()
		}
	}()
	for i := 0; i < 100; i++ {
		s.Start()
	}
	<-done

	snap := s.Snapshot()
	assert.True(t, snap.EndTime.IsZero())
	assert.False(t, snap.StartTime.IsZero())
}

func TestReduction_Empty(t *testing.T) {
	assert.Equal(t, 0.0, NewStatistics().Reduction())
}

func TestConcurrentUpdates(t *testing.T) {
	s := NewStatistics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.IncrementFilesFound()
			s.IncrementFilesProcessed()
			s.IncrementFileType(".GIF")
			if i%5 == 0 {
				s.IncrementFilesWithErrors()
				s.AddError(fmt.Sprintf("f%d.gif", i), "compress", "boom")
				return
			}
			s.RecordCompression(100, 50, 1)
		}(i)
	}
	wg.Wait()
	s.Finalize()

	snap := s.Snapshot()
	assert.Equal(t, int64(50), snap.TotalFilesFound)
	assert.Equal(t, int64(50), snap.TotalFilesProcessed)
	assert.Equal(t, int64(40), snap.FilesCompressed)
	assert.Equal(t, int64(10), snap.FilesWithErrors)
	assert.Len(t, snap.Errors, 10)
	assert.Equal(t, int64(10), s.GetFilesWithErrors())
	assert.InDelta(t, 0.5, snap.Reduction, 1e-9)
	assert.Equal(t, int64(50), s.FileTypeStats[".gif"])
}

func TestSnapshot_JSON(t *testing.T) {
	s := NewStatistics()
	s.RecordCompression(2048, 1024, 4)

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(4), decoded["frames_processed"])
	assert.Equal(t, 0.5, decoded["reduction"])
	assert.NotEmpty(t, decoded["duration"])
}

func TestGetSummary(t *testing.T) {
	s := NewStatistics()
	s.IncrementFilesFound()
	s.IncrementFilesProcessed()
	s.RecordCompression(2_000_000, 500_000, 10)
	s.Finalize()

	summary := s.GetSummary()
	assert.Contains(t, summary, "Compression Statistics Summary")
	assert.Contains(t, summary, "Compressed: 1")
	assert.Contains(t, summary, "Bytes In: 2.0 MB")
	assert.Contains(t, summary, "Bytes Out: 500 kB")
	assert.Contains(t, summary, "Reduction: 75.0%")
}

func TestGetErrorSummary(t *testing.T) {
	s := NewStatistics()
	assert.Equal(t, "No errors occurred during processing", s.GetErrorSummary())

	for i := 0; i < 12; i++ {
		s.AddError(fmt.Sprintf("f%d.gif", i), "decode", "bad header")
	}
	summary := s.GetErrorSummary()
	assert.Contains(t, summary, "Errors (12 total)")
	assert.Contains(t, summary, "decode: f0.gif - bad header")
	assert.Contains(t, summary, "... and 2 more errors")
}

func TestGetFileTypeBreakdown(t *testing.T) {
	s := NewStatistics()
	assert.Equal(t, "No file type statistics available", s.GetFileTypeBreakdown())

	s.IncrementFileType(".png")
	s.IncrementFileType(".gif")
	s.IncrementFileType(".gif")
	assert.Equal(t, "File Type Breakdown:\n  .gif: 2\n  .png: 1\n", s.GetFileTypeBreakdown())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", formatBytes(0))
	assert.Equal(t, "1.5 kB", formatBytes(1500))
	assert.Equal(t, "-1.5 kB", formatBytes(-1500))
}
