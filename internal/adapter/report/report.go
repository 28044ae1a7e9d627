// Package report writes a human-readable YAML summary of a pipeline run.
package report

import (
	"bytes"
	"fmt"
	"os"

	"github.com/couchcryptid/urban-mobility-etl/internal/domain"
	"gopkg.in/yaml.v3"
)

// Write encodes summary as YAML and writes it to path, replacing any
// previous report.
func Write(path string, summary domain.RunSummary) error {
	data, err := Encode(summary)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}

// Encode renders summary as YAML. Stage durations are written as Go
// duration strings such as "1.5s".
func Encode(summary domain.RunSummary) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(summary); err != nil {
		return nil, fmt.Errorf("encode run report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode run report: %w", err)
	}
	return buf.Bytes(), nil
}

// Read loads a report written by Write.
func Read(path string) (domain.RunSummary, error) {
	var summary domain.RunSummary
	data, err := os.ReadFile(path)
	if err != nil {
		return summary, fmt.Errorf("read run report: %w", err)
	}
	if err := yaml.Unmarshal(data, &summary); err != nil {
		return summary, fmt.Errorf("decode run report: %w", err)
	}
	return summary, nil
}
