// internal/advisor/workflow.go
package advisor

import "fmt"

var workflowTemplates = map[Style][]string{
	StyleGuided: {
		"confirm the requirement understanding",
		"choose the diagram types to generate",
		"generate each diagram and confirm it",
		"run the quality checks",
		"refine diagrams based on feedback",
		"export the final results",
	},
	StyleAutonomous: {
		"analyze the requirements automatically",
		"generate all recommended diagrams in one batch",
		"run automatic quality checks and repairs",
		"produce the final report",
	},
	StyleExpert: {
		"detailed requirement analysis and parameter tuning",
		"customize the generation strategy per diagram",
		"advanced quality checks and optimization",
		"professional report with recommendations",
		"export in multiple formats",
	},
}

// workflowFor returns the numbered workflow for the style. More than five
// diagram types inserts a batching hint before the final step.
func workflowFor(style Style, diagramCount int) []string {
	template, ok := workflowTemplates[style]
	if !ok {
		template = workflowTemplates[StyleGuided]
	}

	workflow := make([]string, 0, len(template)+1)
	for i, step := range template {
		workflow = append(workflow, fmt.Sprintf("%d. %s", i+1, step))
	}

	if diagramCount > 5 {
		hint := "process the diagrams in batches to keep the run manageable"
		last := workflow[len(workflow)-1]
		workflow[len(workflow)-1] = hint
		workflow = append(workflow, last)
	}

	return workflow
}
