// Package parser reads usage-report files produced by the upstream static
// analyzer. Each file is JSONL: one usage report per line.
package parser

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fhelabs/fhegas/internal/model"
)

// DefaultReportsDir returns the directory the analyzer writes report files
// to, ~/.fhegas/reports.
func DefaultReportsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fhegas", "reports"), nil
}

// FindReportFiles finds all JSONL report files under dir.
func FindReportFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && filepath.Ext(path) == ".jsonl" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// ParseFile parses a single JSONL file and returns the usage reports it
// contains. Malformed lines and reports without a subject ID are skipped;
// the analyzer occasionally flushes partial lines.
func ParseFile(path string) ([]model.UsageReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var reports []model.UsageReport
	scanner := bufio.NewScanner(file)

	// Increase buffer size for large operation lists
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var report model.UsageReport
		if err := json.Unmarshal(line, &report); err != nil {
			continue
		}
		if report.SubjectID == "" {
			continue
		}

		reports = append(reports, report)
	}

	return reports, scanner.Err()
}

// ParseDir parses every report file under dir in lexical path order.
func ParseDir(dir string) ([]model.UsageReport, error) {
	files, err := FindReportFiles(dir)
	if err != nil {
		return nil, err
	}

	var reports []model.UsageReport
	for _, f := range files {
		parsed, err := ParseFile(f)
		if err != nil {
			return nil, err
		}
		reports = append(reports, parsed...)
	}
	return reports, nil
}
