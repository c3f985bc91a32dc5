package wgan_go

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// MetricsSink Destination of training metrics
type MetricsSink interface {
	LogMetric(name string, value float64) error
	LogImage(name string, png []byte) error
}

// LogSink Writes metrics to logger and images to PNG files in directory
type LogSink struct {
	logger   *log.Logger
	imageDir string
	images   int
}

// NewLogSink Creates sink. Images are dropped if imageDir is empty
func NewLogSink(logger *log.Logger, imageDir string) *LogSink {
	if logger == nil {
		logger = log.New(os.Stderr, "[wgan] ", log.LstdFlags)
	}
	return &LogSink{
		logger:   logger,
		imageDir: imageDir,
	}
}

// LogMetric See ref. MetricsSink
func (s *LogSink) LogMetric(name string, value float64) error {
	s.logger.Printf("%s: %.6f\n", name, value)
	return nil
}

// LogImage Saves image as <imageDir>/<name>_<n>.png
func (s *LogSink) LogImage(name string, png []byte) error {
	if s.imageDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.imageDir, 0755); err != nil {
		return errors.Wrap(err, "Can't create directory for images")
	}
	fname := filepath.Join(s.imageDir, fmt.Sprintf("%s_%d.png", strings.ReplaceAll(name, "/", "_"), s.images))
	if err := os.WriteFile(fname, png, 0644); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't write image '%s'", fname))
	}
	s.images++
	s.logger.Printf("%s: saved to '%s'\n", name, fname)
	return nil
}

// Record Single entry of MemorySink. Image is nil for scalar metrics
type Record struct {
	Name  string
	Value float64
	Image []byte
}

// MemorySink Keeps every metric in order of arrival
type MemorySink struct {
	Records []Record
}

// LogMetric See ref. MetricsSink
func (s *MemorySink) LogMetric(name string, value float64) error {
	s.Records = append(s.Records, Record{Name: name, Value: value})
	return nil
}

// LogImage See ref. MetricsSink
func (s *MemorySink) LogImage(name string, png []byte) error {
	s.Records = append(s.Records, Record{Name: name, Image: png})
	return nil
}

// Values Returns all scalar values logged under name
func (s *MemorySink) Values(name string) []float64 {
	values := []float64{}
	for _, r := range s.Records {
		if r.Name == name && r.Image == nil {
			values = append(values, r.Value)
		}
	}
	return values
}

// Names Returns names of records in order of arrival
func (s *MemorySink) Names() []string {
	names := make([]string, len(s.Records))
	for i, r := range s.Records {
		names[i] = r.Name
	}
	return names
}
