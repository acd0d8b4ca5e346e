package s0_data

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// Dataset is everything a backtest consumes, fully loaded.
type Dataset struct {
	Bars        []contracts.Bar
	Aux         []contracts.AuxSignals
	Instruments []contracts.Instrument
}

// Source loads a Dataset. All I/O happens here, outside the core.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

// Paths points a file source at its inputs. Aux and Instruments are optional.
type Paths struct {
	Bars        string
	Aux         string
	Instruments string
	Location    *time.Location // zone of naive timestamps, default UTC
}

// Supported file formats
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// NewSource returns the file Source for format (csv, parquet).
func NewSource(format string, paths Paths) (Source, error) {
	if paths.Bars == "" {
		return nil, fmt.Errorf("bars path is required")
	}
	if paths.Location == nil {
		paths.Location = time.UTC
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatCSV:
		return &CSVSource{paths: paths}, nil
	case FormatParquet:
		return &ParquetSource{paths: paths}, nil
	default:
		return nil, fmt.Errorf("unsupported data format %q (use: csv, parquet)", format)
	}
}

// FormatFromPath guesses the format from the file extension.
func FormatFromPath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// CSVSource reads bars, aux signals and instruments from CSV files.
type CSVSource struct {
	paths Paths
}

// Load implements Source
func (s *CSVSource) Load(ctx context.Context) (*Dataset, error) {
	ds := &Dataset{}

	err := withFile(s.paths.Bars, func(f *os.File) (err error) {
		ds.Bars, err = ReadBarsCSV(f, s.paths.Location)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}

	if s.paths.Aux != "" {
		err := withFile(s.paths.Aux, func(f *os.File) (err error) {
			ds.Aux, err = ReadAuxCSV(f, s.paths.Location)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("load aux: %w", err)
		}
	}

	if s.paths.Instruments != "" {
		err := withFile(s.paths.Instruments, func(f *os.File) (err error) {
			ds.Instruments, err = ReadInstrumentsCSV(f)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("load instruments: %w", err)
		}
	}

	return ds, ctx.Err()
}

// ParquetSource reads bars, aux signals and instruments from Parquet files.
type ParquetSource struct {
	paths Paths
}

// Load implements Source
func (s *ParquetSource) Load(ctx context.Context) (*Dataset, error) {
	ds := &Dataset{}
	var err error

	if ds.Bars, err = ReadBarsParquet(s.paths.Bars, s.paths.Location); err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if s.paths.Aux != "" {
		if ds.Aux, err = ReadAuxParquet(s.paths.Aux, s.paths.Location); err != nil {
			return nil, fmt.Errorf("load aux: %w", err)
		}
	}
	if s.paths.Instruments != "" {
		if ds.Instruments, err = ReadInstrumentsParquet(s.paths.Instruments); err != nil {
			return nil, fmt.Errorf("load instruments: %w", err)
		}
	}

	return ds, ctx.Err()
}

func withFile(path string, fn func(f *os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}
