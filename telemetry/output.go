package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// ConfigWriter is implemented by configuration types that can snapshot
// themselves as YAML.
type ConfigWriter interface {
	WriteYAML(path string) error
}

// OutputManager handles structured run output with CSV logging.
// A nil *OutputManager is valid and discards everything.
type OutputManager struct {
	dir       string
	frameFile *os.File
	perfFile  *os.File

	// Track if headers have been written
	frameHeaderWritten bool
	perfHeaderWritten  bool
}

// NewOutputManager creates the output directory with telemetry.csv and
// perf.csv. Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating telemetry.csv: %w", err)
	}
	om.frameFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.frameFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the run configuration as config.yaml.
func (om *OutputManager) WriteConfig(cfg ConfigWriter) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// writeRecords marshals records, with a header only on the first write.
func writeRecords[T any](f *os.File, headerWritten *bool, records []T) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}

// WriteFrame appends a frame stats record to telemetry.csv.
func (om *OutputManager) WriteFrame(stats FrameStats) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(om.frameFile, &om.frameHeaderWritten, []FrameStats{stats}); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// WritePerf appends a performance record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd uint64) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(om.perfFile, &om.perfHeaderWritten, []PerfStatsCSV{stats.ToCSV(windowEnd)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// Path returns the path of a file inside the output directory.
func (om *OutputManager) Path(name string) string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, name)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range []*os.File{om.frameFile, om.perfFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
