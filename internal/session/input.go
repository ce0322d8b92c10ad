package session

import (
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Supported input formats.
const (
	FormatRaw = "raw"
	FormatCSV = "csv"
)

// Input is a file loaded into a session.
type Input struct {
	Path    string
	Format  string
	Samples []float64
}

// DetectFormat resolves the input format: an explicit hint wins, otherwise
// the file extension decides.
func DetectFormat(path, hint string) (string, error) {
	if hint = strings.ToLower(strings.TrimSpace(hint)); hint != "" {
		switch hint {
		case FormatRaw, FormatCSV:
			return hint, nil
		default:
			return "", fmt.Errorf("unsupported input format %q", hint)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".raw", ".bin":
		return FormatRaw, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("cannot detect input format of %q; use --input-format", path)
	}
}

// LoadFile reads path. raw is little-endian signed 16-bit; csv takes the first
// field of each non-empty, non-comment line.
func LoadFile(path, format string) (*Input, error) {
	resolved, err := DetectFormat(path, format)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", path, err)
	}
	defer f.Close()

	var samples []float64
	switch resolved {
	case FormatRaw:
		samples, err = readRaw(f)
	case FormatCSV:
		samples, err = readCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s input %q: %w", resolved, path, err)
	}

	return &Input{Path: path, Format: resolved, Samples: samples}, nil
}

func readRaw(r io.Reader) ([]float64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	samples := make([]float64, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		samples = append(samples, float64(int16(binary.LittleEndian.Uint16(data[i:]))))
	}
	return samples, nil
}

func readCSV(r io.Reader) ([]float64, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var samples []float64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		field := strings.TrimSpace(record[0])
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: invalid sample %q", line, field)
		}
		samples = append(samples, v)
	}
}
