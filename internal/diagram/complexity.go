// internal/diagram/complexity.go
package diagram

import "strings"

// Complexity thresholds by element count.
const (
	simpleThreshold = 10
	mediumThreshold = 25
)

// CountElements estimates how many nodes, relationships, and declarations a
// diagram contains. Comment lines are ignored; as a floor, half the non-blank
// line count is used so sparse notations are not undercounted.
func CountElements(code string) int {
	if strings.TrimSpace(code) == "" {
		return 0
	}

	lines := strings.Split(code, "\n")
	count := 0
	contentLines := 0

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		contentLines++
		if strings.HasPrefix(line, "%%") || strings.HasPrefix(line, "%") {
			continue
		}

		switch {
		case strings.Contains(line, "-->") || strings.Contains(line, "---") || strings.Contains(line, "||--"):
			count++
		case strings.Contains(line, ":") && !strings.HasPrefix(line, "graph"):
			count++
		case strings.HasPrefix(line, "class ") || strings.HasPrefix(line, "participant "):
			count++
		}
	}

	if floor := contentLines / 2; count < floor {
		count = floor
	}
	return count
}

// EstimateComplexity classifies the diagram by its element count.
func EstimateComplexity(code string) Complexity {
	if strings.TrimSpace(code) == "" {
		return ComplexityUnknown
	}

	elements := CountElements(code)
	switch {
	case elements <= simpleThreshold:
		return ComplexitySimple
	case elements <= mediumThreshold:
		return ComplexityMedium
	default:
		return ComplexityComplex
	}
}
