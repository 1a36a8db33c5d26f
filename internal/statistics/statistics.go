package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Statistics contains all statistics for a compression run.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	FilesCompressed     int64
	FilesGrown          int64
	FilesSkipped        int64
	FilesWithErrors     int64

	FramesProcessed int64
	BytesIn         int64
	BytesOut        int64

	DirectoriesScanned int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	FileTypeStats map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string    `json:"file_path"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of the counters, safe to marshal.
type Snapshot struct {
	TotalFilesFound     int64       `json:"total_files_found"`
	TotalFilesProcessed int64       `json:"total_files_processed"`
	FilesCompressed     int64       `json:"files_compressed"`
	FilesGrown          int64       `json:"files_grown"`
	FilesSkipped        int64       `json:"files_skipped"`
	FilesWithErrors     int64       `json:"files_with_errors"`
	FramesProcessed     int64       `json:"frames_processed"`
	BytesIn             int64       `json:"bytes_in"`
	BytesOut            int64       `json:"bytes_out"`
	Reduction           float64     `json:"reduction"`
	DirectoriesScanned  int64       `json:"directories_scanned"`
	StartTime           time.Time   `json:"start_time"`
	EndTime             time.Time   `json:"end_time,omitempty"`
	Duration            string      `json:"duration"`
	FilesPerSecond      float64     `json:"files_per_second"`
	Errors              []StatError `json:"errors"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		FileTypeStats: make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// IncrementFilesFound increases the count of found files by 1.
func (s *Statistics) IncrementFilesFound() {
	atomic.AddInt64(&s.TotalFilesFound, 1)
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// IncrementFilesWithErrors increases the count of files with errors by 1.
func (s *Statistics) IncrementFilesWithErrors() {
	atomic.AddInt64(&s.FilesWithErrors, 1)
}

// IncrementDirectoriesScanned increases the count of scanned directories by 1.
func (s *Statistics) IncrementDirectoriesScanned() {
	atomic.AddInt64(&s.DirectoriesScanned, 1)
}

// IncrementFileType increases the count for a specific file type by 1.
func (s *Statistics) IncrementFileType(fileType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FileTypeStats[strings.ToLower(fileType)]++
}

// RecordCompression adds one finished file. Files whose output came out
// larger than the input are counted separately.
func (s *Statistics) RecordCompression(originalSize, outputSize int64, frames int) {
	atomic.AddInt64(&s.FilesCompressed, 1)
	atomic.AddInt64(&s.BytesIn, originalSize)
	atomic.AddInt64(&s.BytesOut, outputSize)
	atomic.AddInt64(&s.FramesProcessed, int64(frames))
	if outputSize > originalSize {
		atomic.AddInt64(&s.FilesGrown, 1)
	}
}

// Reduction returns the overall size reduction of all compressed files.
func (s *Statistics) Reduction() float64 {
	in := atomic.LoadInt64(&s.BytesIn)
	if in <= 0 {
		return 0
	}
	return float64(in-atomic.LoadInt64(&s.BytesOut)) / float64(in)
}

// Start marks the beginning of a run. It may be called while other
// goroutines read a Snapshot.
func (s *Statistics) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.StartTime = time.Now()
	s.EndTime = time.Time{}
	s.Duration = 0
}

// Finalize calculates final statistics such as duration and files per second.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	totalProcessed := atomic.LoadInt64(&s.TotalFilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(totalProcessed) / s.Duration.Seconds()
	}
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Snapshot returns a copy of the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	errs := make([]StatError, len(s.Errors))
	copy(errs, s.Errors)

	duration := s.Duration
	if s.EndTime.IsZero() {
		duration = time.Since(s.StartTime)
	}

	return Snapshot{
		TotalFilesFound:     atomic.LoadInt64(&s.TotalFilesFound),
		TotalFilesProcessed: atomic.LoadInt64(&s.TotalFilesProcessed),
		FilesCompressed:     atomic.LoadInt64(&s.FilesCompressed),
		FilesGrown:          atomic.LoadInt64(&s.FilesGrown),
		FilesSkipped:        atomic.LoadInt64(&s.FilesSkipped),
		FilesWithErrors:     atomic.LoadInt64(&s.FilesWithErrors),
		FramesProcessed:     atomic.LoadInt64(&s.FramesProcessed),
		BytesIn:             atomic.LoadInt64(&s.BytesIn),
		BytesOut:            atomic.LoadInt64(&s.BytesOut),
		Reduction:           s.Reduction(),
		DirectoriesScanned:  atomic.LoadInt64(&s.DirectoriesScanned),
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		Duration:            duration.Round(time.Millisecond).String(),
		FilesPerSecond:      s.FilesPerSecond,
		Errors:              errs,
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	filesPerSecond := s.FilesPerSecond
	s.mutex.RUnlock()

	return fmt.Sprintf(`Compression Statistics Summary:

Files:
		Total Found: %d
		Total Processed: %d
		Compressed: %d
		Grew: %d
		Skipped: %d
		Errors: %d

Output:
		Frames: %d
		Bytes In: %s
		Bytes Out: %s
		Reduction: %.1f%%

Performance:
		Duration: %v
		Files/Second: %.2f
		Directories Scanned: %d`,
		atomic.LoadInt64(&s.TotalFilesFound),
		atomic.LoadInt64(&s.TotalFilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesGrown),
		atomic.LoadInt64(&s.FilesSkipped),
		atomic.LoadInt64(&s.FilesWithErrors),
		atomic.LoadInt64(&s.FramesProcessed),
		formatBytes(atomic.LoadInt64(&s.BytesIn)),
		formatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.Reduction()*100,
		duration,
		filesPerSecond,
		atomic.LoadInt64(&s.DirectoriesScanned))
}

// GetFileTypeBreakdown returns a formatted breakdown of file types processed.
func (s *Statistics) GetFileTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FileTypeStats) == 0 {
		return "No file type statistics available"
	}

	types := make([]string, 0, len(s.FileTypeStats))
	for fileType := range s.FileTypeStats {
		types = append(types, fileType)
	}
	sort.Strings(types)

	var b strings.Builder
	b.WriteString("File Type Breakdown:\n")
	for _, fileType := range types {
		fmt.Fprintf(&b, "  %s: %d\n", fileType, s.FileTypeStats[fileType])
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			fmt.Fprintf(&b, "  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		fmt.Fprintf(&b, "  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return b.String()
}

func formatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.Bytes(uint64(-bytes))
	}
	return humanize.Bytes(uint64(bytes))
}

// GetFilesWithErrors returns the total number of recorded errors.
func (s *Statistics) GetFilesWithErrors() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return int64(len(s.Errors))
}
