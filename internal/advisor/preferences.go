// internal/advisor/preferences.go
package advisor

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/diagramd/internal/diagram"
)

// ResolvePreferences layers explicit preferences, history inference, and a
// keyword scan of the current request over the defaults. Later layers win.
func ResolvePreferences(explicit *Preferences, history []HistoryRecord, request string) Preferences {
	prefs := DefaultPreferences()

	if explicit != nil {
		applyExplicit(&prefs, explicit)
	}
	applyHistory(&prefs, history)
	applyRequestKeywords(&prefs, request)

	return prefs
}

func applyExplicit(prefs *Preferences, explicit *Preferences) {
	if explicit.Complexity != "" {
		prefs.Complexity = explicit.Complexity
	}
	if explicit.DetailLevel != "" {
		prefs.DetailLevel = explicit.DetailLevel
	}
	if explicit.Style != "" {
		prefs.Style = explicit.Style
	}
	if len(explicit.PreferredDiagrams) > 0 {
		prefs.PreferredDiagrams = explicit.PreferredDiagrams
	}
	if explicit.QualityThreshold > 0 {
		prefs.QualityThreshold = explicit.QualityThreshold
	}
	if explicit.AutoFix != nil {
		prefs.AutoFix = explicit.AutoFix
	}
	if explicit.BatchMode != nil {
		prefs.BatchMode = explicit.BatchMode
	}
}

// applyHistory infers the three most used diagram types and the most common
// complexity from past sessions.
func applyHistory(prefs *Preferences, history []HistoryRecord) {
	if len(history) == 0 {
		return
	}

	typeCounts := make(map[diagram.Type]int)
	complexityCounts := make(map[diagram.Complexity]int)
	for _, record := range history {
		for _, t := range record.DiagramTypes {
			typeCounts[t]++
		}
		if record.Complexity != "" && record.Complexity != diagram.ComplexityUnknown {
			complexityCounts[record.Complexity]++
		}
	}

	if len(typeCounts) > 0 {
		types := make([]diagram.Type, 0, len(typeCounts))
		for t := range typeCounts {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool {
			if typeCounts[types[i]] != typeCounts[types[j]] {
				return typeCounts[types[i]] > typeCounts[types[j]]
			}
			return types[i] < types[j]
		})
		if len(types) > 3 {
			types = types[:3]
		}
		prefs.PreferredDiagrams = types
	}

	if len(complexityCounts) > 0 {
		var best diagram.Complexity
		bestCount := -1
		for c, n := range complexityCounts {
			if n > bestCount || (n == bestCount && c < best) {
				best, bestCount = c, n
			}
		}
		prefs.Complexity = best
	}
}

// applyRequestKeywords scans the request for preference signals.
func applyRequestKeywords(prefs *Preferences, request string) {
	lower := strings.ToLower(request)

	if containsAny(lower, "simple", "simplified", "minimal") {
		prefs.Complexity = diagram.ComplexitySimple
	} else if containsAny(lower, "complex", "detailed", "comprehensive") {
		prefs.Complexity = diagram.ComplexityComplex
	}

	if containsAny(lower, "guide", "help", "walk me through") {
		prefs.Style = StyleGuided
	} else if containsAny(lower, "auto", "batch") {
		prefs.Style = StyleAutonomous
	} else if containsAny(lower, "expert", "advanced") {
		prefs.Style = StyleExpert
	}

	if containsAny(lower, "high quality", "precise") {
		prefs.QualityThreshold = 90
	} else if containsAny(lower, "quick", "fast") {
		prefs.QualityThreshold = 60
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
