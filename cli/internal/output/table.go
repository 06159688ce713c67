package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fhelabs/fhegas/internal/model"
)

const (
	compactThreshold = 100 // Terminal width below which compact mode kicks in
	defaultWidth     = 120
)

// TableOptions controls table display behavior
type TableOptions struct {
	ForceCompact bool
}

// SubjectAnalysis pairs a subject ID with its analysis for display.
type SubjectAnalysis struct {
	SubjectID string `json:"subject_id"`
	model.ContractAnalysis
}

// shouldUseCompact determines if compact mode should be used
func shouldUseCompact(opts TableOptions) bool {
	if opts.ForceCompact {
		return true
	}
	return getTerminalWidth() < compactThreshold
}

// FormatGas formats a gas amount with thousand separators
func FormatGas(n uint64) string {
	if n == 0 {
		return "0"
	}

	str := fmt.Sprintf("%d", n)
	result := ""
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}

// shortenSubjectID truncates long addresses to a leading slice
func shortenSubjectID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// PrintJSON prints analyses as a JSON array
func PrintJSON(results []SubjectAnalysis) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)
}

// PrintTable prints per-subject analyses as a formatted table, followed by
// the optimization suggestions for each flagged subject.
func PrintTable(results []SubjectAnalysis, opts TableOptions) {
	if len(results) == 0 {
		fmt.Println("No usage reports found.")
		return
	}

	compact := shouldUseCompact(opts)

	// Calculate key column width
	keyWidth := len("Subject")
	for _, r := range results {
		key := r.SubjectID
		if compact {
			key = shortenSubjectID(key)
		}
		if len(key) > keyWidth {
			keyWidth = len(key)
		}
	}
	if keyWidth < 10 {
		keyWidth = 10
	}
	if compact && keyWidth > 12 {
		keyWidth = 12
	}

	fmt.Println()

	if compact {
		// Compact: Subject, FHE Ops, Est. Gas
		fmt.Printf("%-*s  %10s  %14s\n", keyWidth, "Subject", "FHE Ops", "Est. Gas")
		fmt.Println(strings.Repeat("─", keyWidth+2+10+2+14))

		for _, r := range results {
			fmt.Printf("%-*s  %10s  %14s\n",
				keyWidth, shortenSubjectID(r.SubjectID),
				FormatGas(r.TotalFheOps),
				FormatGas(r.EstimatedGas))
		}
	} else {
		// Full: Subject, Name, FHE Ops, Est. Gas, Suggestions
		nameWidth := len("Contract")
		for _, r := range results {
			if len(r.SubjectName) > nameWidth {
				nameWidth = len(r.SubjectName)
			}
		}

		fmt.Printf("%-*s  %-*s  %10s  %14s  %11s\n",
			keyWidth, "Subject", nameWidth, "Contract", "FHE Ops", "Est. Gas", "Suggestions")
		fmt.Println(strings.Repeat("─", keyWidth+2+nameWidth+2+10+2+14+2+11))

		for _, r := range results {
			fmt.Printf("%-*s  %-*s  %10s  %14s  %11d\n",
				keyWidth, r.SubjectID,
				nameWidth, r.SubjectName,
				FormatGas(r.TotalFheOps),
				FormatGas(r.EstimatedGas),
				len(r.OptimizationSuggestions))
		}
	}

	if len(results) > 1 {
		var totalOps, totalGas uint64
		for _, r := range results {
			totalOps += r.TotalFheOps
			totalGas += r.EstimatedGas
		}
		if compact {
			fmt.Println(strings.Repeat("─", keyWidth+2+10+2+14))
			fmt.Printf("%-*s  %10s  %14s\n", keyWidth, "Total",
				FormatGas(totalOps), FormatGas(totalGas))
		} else {
			fmt.Printf("\n%d subjects, %s FHE ops, %s gas total\n",
				len(results), FormatGas(totalOps), FormatGas(totalGas))
		}
	}

	PrintSuggestions(results)

	if compact {
		fmt.Println()
		fmt.Println("(Compact mode - expand terminal for full view)")
	}
}

// PrintSuggestions prints the optimization suggestions per subject, in the
// order the operations appeared in each report.
func PrintSuggestions(results []SubjectAnalysis) {
	for _, r := range results {
		if len(r.OptimizationSuggestions) == 0 {
			continue
		}
		fmt.Printf("\n%s:\n", r.SubjectID)
		for _, s := range r.OptimizationSuggestions {
			fmt.Printf("  - %s\n", s)
		}
	}
}

// PrintCostTable prints the registry snapshot
func PrintCostTable(table []model.OperationCost) {
	nameWidth := len("Operation")
	for _, c := range table {
		if len(c.Name) > nameWidth {
			nameWidth = len(c.Name)
		}
	}

	fmt.Println()
	fmt.Printf("%-*s  %12s  %12s\n", nameWidth, "Operation", "Base", "Per Byte")
	fmt.Println(strings.Repeat("─", nameWidth+2+12+2+12))
	for _, c := range table {
		fmt.Printf("%-*s  %12s  %12s\n",
			nameWidth, c.Name, FormatGas(c.BaseCost), FormatGas(c.PerByteCost))
	}
	fmt.Println()
}
