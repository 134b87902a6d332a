package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ramworld21/sda-auditor/config"
	"github.com/ramworld21/sda-auditor/scanner"
)

var (
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1B8354"))
	stylePass  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00A651"))
	styleFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	styleDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleCard  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).BorderForeground(lipgloss.Color("238"))
)

// runCLI audits target once. The exit code is 0 when every mandatory check
// passed, 1 when the audit ran but failed a check, 2 on setup errors.
func runCLI(ctx context.Context, cfg config.Config, logger *slog.Logger, target string, fast, summary bool, out io.Writer) int {
	u, err := scanner.NormalizeURL(target)
	if err != nil {
		fmt.Fprintf(out, "invalid url: %v\n", err)
		return 2
	}

	a, err := newApp(cfg, logger, false)
	if err != nil {
		fmt.Fprintf(out, "setup: %v\n", err)
		return 2
	}
	defer a.Close()

	res := a.engine.RunAudit(ctx, u.String(), scanner.Options{
		FastMode: fast,
		Timeout:  cfg.ScanTimeout,
		OnProgress: func(stage string, current, total int) {
			logger.Debug("progress", "stage", stage, "current", current, "total", total)
		},
	})

	if err := printResult(out, res, summary); err != nil {
		fmt.Fprintf(out, "write result: %v\n", err)
		return 2
	}
	if !res.Passed() {
		return 1
	}
	return 0
}

func printResult(out io.Writer, res *scanner.AuditResult, summary bool) error {
	if summary {
		_, err := fmt.Fprintln(out, renderSummary(res))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}

func renderSummary(res *scanner.AuditResult) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("SDA audit") + " " + res.URL + "\n")
	if res.Title != "" {
		b.WriteString(styleDim.Render(res.Title) + "\n")
	}
	b.WriteString("\n")

	if res.NavigationError != "" {
		b.WriteString(styleFail.Render("✗ audit failed: "+res.NavigationError) + "\n")
		return styleCard.Render(strings.TrimRight(b.String(), "\n"))
	}

	b.WriteString(fmt.Sprintf("Colors     %5.1f%% on palette (%d sampled)\n", res.ColorAccuracy, len(res.Colors)))
	if res.SpacingAccuracy != nil {
		b.WriteString(fmt.Sprintf("Spacing    %5.1f%% on scale (%d sampled)\n", *res.SpacingAccuracy, len(res.Spacing)))
	} else {
		b.WriteString("Spacing    " + styleDim.Render("no data") + "\n")
	}
	b.WriteString(check("Font", res.Font.FinalMatch, fmt.Sprintf("%d%% of %d text samples", res.Font.SampledConfidencePct, res.Font.SampleCount)))
	b.WriteString(check("Stamp", res.DigitalStamp.Present, fmt.Sprintf("score %d", res.DigitalStamp.ConfidenceScore)))
	b.WriteString(check("Search", res.SearchBar.Present, fmt.Sprintf("score %d", res.SearchBar.ConfidenceScore)))

	logo := res.Logo.LogoURL
	if logo == "" {
		logo = "none"
	}
	b.WriteString("Logo       " + logo + styleDim.Render(" ("+res.Logo.Source+")") + "\n")
	b.WriteString(fmt.Sprintf("Sitemaps   %d human, %d machine\n", len(res.Sitemap.HumanReadable), len(res.Sitemap.Machine)))
	b.WriteString(fmt.Sprintf("Language   %s (%s)\n", orNone(res.Language.Language), res.Language.Classification))

	if len(res.Warnings) > 0 {
		b.WriteString("\n" + styleWarn.Render("warnings: "+strings.Join(res.Warnings, ", ")) + "\n")
	}
	if len(res.DetectorErrors) > 0 {
		b.WriteString(styleWarn.Render(fmt.Sprintf("%d detector error(s)", len(res.DetectorErrors))) + "\n")
	}

	b.WriteString("\n")
	if res.Passed() {
		b.WriteString(stylePass.Render("✓ all mandatory checks passed"))
	} else {
		b.WriteString(styleFail.Render("✗ mandatory checks failed"))
	}
	b.WriteString(styleDim.Render(fmt.Sprintf("  %dms, %d attempt(s)", res.DurationMs, res.Attempts)))
	return styleCard.Render(b.String())
}

func check(label string, ok bool, detail string) string {
	mark := styleFail.Render("✗")
	if ok {
		mark = stylePass.Render("✓")
	}
	return fmt.Sprintf("%-10s %s %s\n", label, mark, styleDim.Render(detail))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
