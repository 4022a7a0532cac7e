package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/medrag/internal/eval"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// writeResult prints a run result as JSON or as styled text.
func writeResult(w io.Writer, res *pipeline.Result, asJSON bool) error {
	resp := pipeline.NewResponse(res)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Answer"))
	b.WriteString("\n")
	b.WriteString(answerStyle.Render(resp.Answer))
	b.WriteString("\n")
	if len(resp.Contexts) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("Context (%d of %d chunks)", len(resp.Contexts), resp.Chunks)))
		b.WriteString("\n")
		for _, c := range resp.Contexts {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s  score %.3f  %s", c.ID, c.Score, preview(c.Text, 72))))
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// writeReport prints an eval report as JSON or as a styled table.
func writeReport(w io.Writer, report *eval.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Suite " + report.Suite))
	b.WriteString("\n")
	for _, r := range report.Results {
		status := passStyle.Render("PASS")
		if !r.Passed {
			status = failStyle.Render("FAIL")
		}
		fmt.Fprintf(&b, "  %s  %s %s\n", status, r.Case, dimStyle.Render(r.Duration.Round(1e6).String()))
		if len(r.MissingKeywords) > 0 {
			b.WriteString(dimStyle.Render("        missing keywords: "+strings.Join(r.MissingKeywords, ", ")) + "\n")
		}
		if len(r.MissingContexts) > 0 {
			b.WriteString(dimStyle.Render("        missing context: "+strings.Join(r.MissingContexts, ", ")) + "\n")
		}
		if r.Message != "" {
			b.WriteString(dimStyle.Render("        "+r.Message) + "\n")
		}
		if r.Error != "" && !r.Passed {
			b.WriteString(dimStyle.Render("        error: "+r.Error) + "\n")
		}
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed\n", report.Passed, report.Failed)
	_, err := io.WriteString(w, b.String())
	return err
}

// preview returns the first line of text cut to n runes.
func preview(text string, n int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	r := []rune(line)
	if len(r) <= n {
		return line
	}
	return string(r[:n-1]) + "…"
}
