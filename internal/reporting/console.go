// Package reporting renders validation results for the console: a styled
// text report for humans and a JSON encoding for tooling.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"readycheck/internal/color"
	"readycheck/internal/dependency"
	"readycheck/internal/environment"
	"readycheck/internal/orchestrator"
)

const (
	glyphPass = "✓"
	glyphFail = "✗"
	glyphWarn = "!"
)

// serviceColumnWidth aligns service names across phase sections.
const serviceColumnWidth = 12

// WriteValidationReport renders a full validation run as styled text.
func WriteValidationReport(w io.Writer, result *orchestrator.DependencyValidationResult) {
	fmt.Fprintf(w, "%s\n", color.HeadingStyle.Render("Service Dependency Validation"))
	fmt.Fprintf(w, "Environment: %s (confidence %.2f)\n\n", result.Environment, result.Confidence)

	byPhase := make(map[dependency.Phase][]orchestrator.ServiceValidationResult)
	for _, sr := range result.ServiceResults {
		byPhase[sr.Phase] = append(byPhase[sr.Phase], sr)
	}

	for _, phase := range result.PhasesValidated {
		fmt.Fprintf(w, "%s\n", color.InfoStyle.Render(phase.String()))
		for _, sr := range byPhase[phase] {
			writeServiceLine(w, sr)
		}
		fmt.Fprintln(w)
	}

	if result.HaltedAt != 0 {
		fmt.Fprintf(w, "%s\n\n", color.ErrorStyle.Render(
			fmt.Sprintf("Halted: critical %s failed", result.HaltedAt)))
	}

	if result.GoldenPath != nil {
		writeGoldenPathSection(w, result)
	}

	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "%s %s\n", color.WarningStyle.Render(glyphWarn), warn)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "%s %s\n", color.ErrorStyle.Render(glyphFail), e)
	}

	verdict := color.SuccessStyle.Render("PASS")
	if !result.OverallSuccess {
		verdict = color.ErrorStyle.Render("FAIL")
	}
	fmt.Fprintf(w, "\n%d checked: %d healthy, %d degraded, %d failed\n",
		result.TotalServicesChecked, result.ServicesHealthy, result.ServicesDegraded, result.ServicesFailed)
	fmt.Fprintf(w, "%s in %v\n", verdict, result.Duration.Round(time.Millisecond))
}

func writeServiceLine(w io.Writer, sr orchestrator.ServiceValidationResult) {
	glyph := color.SuccessStyle.Render(glyphPass)
	if !sr.Healthy {
		glyph = color.ErrorStyle.Render(glyphFail)
	}
	name := runewidth.FillRight(string(sr.Service), serviceColumnWidth)

	detail := ""
	if sr.Result != nil {
		if sr.Healthy {
			detail = color.MutedStyle.Render(fmt.Sprintf("%v", sr.Result.ResponseTime.Round(time.Millisecond)))
		} else {
			detail = fmt.Sprintf("%s: %s", sr.Result.Status, sr.Result.ErrorMessage)
		}
		if sr.Result.RetryCount > 0 {
			detail += color.MutedStyle.Render(fmt.Sprintf(" (%d retries)", sr.Result.RetryCount))
		}
	}
	fmt.Fprintf(w, "  %s %s %s\n", glyph, name, detail)

	if len(sr.DependencyFailures) > 0 {
		deps := make([]string, len(sr.DependencyFailures))
		for i, d := range sr.DependencyFailures {
			deps[i] = string(d)
		}
		fmt.Fprintf(w, "      %s\n", color.MutedStyle.Render(
			"unhealthy prerequisites: "+strings.Join(deps, ", ")))
	}
}

func writeGoldenPathSection(w io.Writer, result *orchestrator.DependencyValidationResult) {
	gp := result.GoldenPath
	fmt.Fprintf(w, "%s (%d/%d passed)\n", color.HeadingStyle.Render("Golden Path"),
		gp.RequirementsPassed, gp.RequirementsTotal)
	for _, rr := range gp.RequirementResults {
		glyph := color.SuccessStyle.Render(glyphPass)
		if !rr.Success {
			glyph = color.ErrorStyle.Render(glyphFail)
		}
		name := runewidth.FillRight(rr.Requirement.Name, 22)
		fmt.Fprintf(w, "  %s %s %s\n", glyph, name, rr.Message)
		if !rr.Success && rr.Requirement.BusinessImpact != "" {
			fmt.Fprintf(w, "      %s\n", color.ErrorStyle.Render("impact: "+rr.Requirement.BusinessImpact))
		}
	}
	fmt.Fprintln(w)
}

// WriteStatusSummary renders the single-attempt status snapshot.
func WriteStatusSummary(w io.Writer, summary *orchestrator.StatusSummary) {
	fmt.Fprintf(w, "%s\n", color.HeadingStyle.Render("Service Status"))
	fmt.Fprintf(w, "Environment: %s (confidence %.2f)\n\n", summary.Environment, summary.Confidence)
	for _, st := range summary.Services {
		glyph := color.SuccessStyle.Render(glyphPass)
		state := "healthy"
		if !st.Healthy {
			glyph = color.ErrorStyle.Render(glyphFail)
			state = string(st.Result.Status)
		}
		name := runewidth.FillRight(string(st.Service), serviceColumnWidth)
		fmt.Fprintf(w, "  %s %s %s  %s\n", glyph, name, st.Phase, state)
	}
}

// WriteEnvironmentContext renders the detected environment context.
func WriteEnvironmentContext(w io.Writer, envCtx *environment.Context) {
	fmt.Fprintf(w, "%s\n", color.HeadingStyle.Render("Environment"))
	fmt.Fprintf(w, "  Environment: %s\n", envCtx.Environment)
	fmt.Fprintf(w, "  Platform:    %s\n", envCtx.Platform)
	fmt.Fprintf(w, "  Confidence:  %.2f\n", envCtx.ConfidenceScore)
	if envCtx.ServiceName != "" {
		fmt.Fprintf(w, "  Service:     %s\n", envCtx.ServiceName)
	}
	if envCtx.ProjectID != "" {
		fmt.Fprintf(w, "  Project:     %s\n", envCtx.ProjectID)
	}
	if envCtx.Region != "" {
		fmt.Fprintf(w, "  Region:      %s\n", envCtx.Region)
	}
	if len(envCtx.DetectionMetadata) > 0 {
		fmt.Fprintf(w, "  %s\n", color.MutedStyle.Render("Signals:"))
		for k, v := range envCtx.DetectionMetadata {
			fmt.Fprintf(w, "    %s %s\n", color.MutedStyle.Render(runewidth.FillRight(k+":", 24)), v)
		}
	}
}

// WriteJSON encodes any report payload as indented JSON.
func WriteJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
