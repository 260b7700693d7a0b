// Package main implements the diagramctl CLI for manual operations against
// the diagramd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the diagramd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "diagramctl",
	Short: "CLI for diagramd HTTP server operations",
	Long: `diagramctl is a command-line interface for interacting with the diagramd
HTTP server. It submits diagram generation requests, inspects and cancels
sessions, and reports server statistics and health.`,
	Version: version,
}

var (
	generateOwner    string
	generateNoRepair bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "diagramd server URL")

	generateCmd.Flags().StringVar(&generateOwner, "user", "", "owner ID attached to the session")
	generateCmd.Flags().BoolVar(&generateNoRepair, "no-repair", false, "skip the quality repair loop")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}

// generateCmd runs the full pipeline for a request read from the arguments
// or stdin.
var generateCmd = &cobra.Command{
	Use:   "generate [request]",
	Short: "Generate diagrams from a natural language request",
	Long: `Generate Mermaid diagrams from a natural language request.

Examples:
  # Generate from an inline request
  diagramctl generate "order management system with users and payments"

  # Generate from stdin
  cat requirements.txt | diagramctl generate -

  # Attach an owner so later requests inherit preferences
  diagramctl generate --user alice "simple checkout flow"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

// statusCmd shows one session.
var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the status of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

// cancelCmd cancels an active session.
var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel an active session",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

// statsCmd reports aggregate statistics.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate session statistics",
	RunE:  runStats,
}

// healthCmd checks server health.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check diagramd server health",
	RunE:  runHealth,
}

// generateRequest matches the POST /api/v1/diagrams request body.
type generateRequest struct {
	Request string          `json:"request"`
	OwnerID string          `json:"user_id,omitempty"`
	Options generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	DisableRepair bool `json:"disable_repair,omitempty"`
}

// sessionView mirrors the session fields the CLI prints.
type sessionView struct {
	ID           string                  `json:"session_id"`
	Status       string                  `json:"status"`
	CurrentStage string                  `json:"current_stage"`
	Duration     int64                   `json:"duration,omitempty"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	Artifacts    map[string]artifactView `json:"artifacts,omitempty"`
	Quality      map[string]qualityView  `json:"quality,omitempty"`
	Output       *outputView             `json:"output,omitempty"`
}

type artifactView struct {
	Code       string   `json:"diagram_code"`
	Valid      bool     `json:"is_valid"`
	Complexity string   `json:"complexity_level"`
	Notes      []string `json:"generation_notes,omitempty"`
}

type qualityView struct {
	Score float64 `json:"score"`
	Level string  `json:"level"`
}

type outputView struct {
	Summary struct {
		ArtifactCount  int      `json:"artifact_count"`
		ValidCount     int      `json:"valid_count"`
		MeanQuality    float64  `json:"mean_quality"`
		TopSuggestions []string `json:"top_suggestions"`
	} `json:"summary"`
}

// runGenerate handles the generate command
func runGenerate(cmd *cobra.Command, args []string) error {
	var request string
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		request = strings.TrimSpace(string(content))
	} else {
		request = args[0]
	}
	if request == "" {
		return fmt.Errorf("no request to submit")
	}

	reqJSON, err := json.Marshal(generateRequest{
		Request: request,
		OwnerID: generateOwner,
		Options: generateOptions{DisableRepair: generateNoRepair},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// Generation rides a remote model through several stages, so the
	// client timeout is generous.
	body, err := doRequest(http.MethodPost, "/api/v1/diagrams", bytes.NewReader(reqJSON), 10*time.Minute)
	if err != nil {
		return err
	}

	var view sessionView
	if err := json.Unmarshal(body, &view); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	printSession(&view)
	return nil
}

// runStatus handles the status command
func runStatus(cmd *cobra.Command, args []string) error {
	body, err := doRequest(http.MethodGet, "/api/v1/sessions/"+args[0], nil, 10*time.Second)
	if err != nil {
		return err
	}

	var view sessionView
	if err := json.Unmarshal(body, &view); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Session:  %s\n", view.ID)
	fmt.Printf("Status:   %s\n", view.Status)
	fmt.Printf("Stage:    %s\n", view.CurrentStage)
	if view.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", view.ErrorMessage)
	}
	return nil
}

// runCancel handles the cancel command
func runCancel(cmd *cobra.Command, args []string) error {
	body, err := doRequest(http.MethodDelete, "/api/v1/sessions/"+args[0], nil, 10*time.Second)
	if err != nil {
		return err
	}

	var resp struct {
		SessionID string `json:"session_id"`
		Cancelled bool   `json:"cancelled"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.Cancelled {
		fmt.Printf("Session %s cancelled\n", resp.SessionID)
	} else {
		fmt.Printf("Session %s was not active\n", resp.SessionID)
	}
	return nil
}

// runStats handles the stats command
func runStats(cmd *cobra.Command, args []string) error {
	body, err := doRequest(http.MethodGet, "/api/v1/statistics", nil, 10*time.Second)
	if err != nil {
		return err
	}

	var stats struct {
		Active       int     `json:"active_sessions"`
		Total        int     `json:"total_sessions"`
		Succeeded    int     `json:"successful_sessions"`
		Failed       int     `json:"failed_sessions"`
		SuccessRate  float64 `json:"success_rate"`
		MeanDuration float64 `json:"average_processing_seconds"`
		SystemStatus string  `json:"system_status"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("System Status:   %s\n", stats.SystemStatus)
	fmt.Printf("Active:          %d\n", stats.Active)
	fmt.Printf("Total:           %d\n", stats.Total)
	fmt.Printf("Succeeded:       %d\n", stats.Succeeded)
	fmt.Printf("Failed:          %d\n", stats.Failed)
	fmt.Printf("Success Rate:    %.1f%%\n", stats.SuccessRate*100)
	fmt.Printf("Mean Duration:   %.2fs\n", stats.MeanDuration)
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	body, err := doRequest(http.MethodGet, "/health", nil, 5*time.Second)
	if err != nil {
		return err
	}

	var health struct {
		Status string `json:"status"`
		LLM    string `json:"llm"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	fmt.Printf("Model Backend: %s\n", health.LLM)
	fmt.Printf("Server URL:    %s\n", serverURL)
	return nil
}

// doRequest sends one request and returns the response body, treating any
// non-200 status as an error.
func doRequest(method, path string, body io.Reader, timeout time.Duration) ([]byte, error) {
	url := serverURL + path
	httpReq, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		if readErr != nil {
			return nil, fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}
	return respBody, nil
}

// printSession renders a finished session to stdout.
func printSession(view *sessionView) {
	fmt.Printf("Session:  %s\n", view.ID)
	fmt.Printf("Status:   %s\n", view.Status)
	if view.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", view.ErrorMessage)
	}

	types := make([]string, 0, len(view.Artifacts))
	for t := range view.Artifacts {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		artifact := view.Artifacts[t]
		fmt.Printf("\n--- %s (valid=%t", t, artifact.Valid)
		if q, ok := view.Quality[t]; ok {
			fmt.Printf(", score=%.1f %s", q.Score, q.Level)
		}
		fmt.Printf(") ---\n%s\n", artifact.Code)
		for _, note := range artifact.Notes {
			fmt.Fprintf(os.Stderr, "[diagramctl] %s: %s\n", t, note)
		}
	}

	if view.Output != nil {
		fmt.Printf("\nSummary: %d diagram(s), %d valid", view.Output.Summary.ArtifactCount, view.Output.Summary.ValidCount)
		if view.Output.Summary.MeanQuality > 0 {
			fmt.Printf(", mean quality %.1f", view.Output.Summary.MeanQuality)
		}
		fmt.Println()
		for _, s := range view.Output.Summary.TopSuggestions {
			fmt.Printf("  - %s\n", s)
		}
	}
}
