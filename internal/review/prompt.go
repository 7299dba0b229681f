package review

import (
	"fmt"
	"strings"
)

// codexArgs builds `exec [flags] --json -o <outputPath> -`; the prompt itself
// goes to stdin.
func codexArgs(cfg Config, outputPath string) []string {
	args := []string{"exec"}
	if cfg.FullAuto {
		args = append(args, "--full-auto")
	}
	if cfg.SkipGitRepoCheck {
		args = append(args, "--skip-git-repo-check")
	}
	if cfg.Ephemeral {
		args = append(args, "--ephemeral")
	}
	if m := strings.TrimSpace(cfg.Model); m != "" {
		args = append(args, "-m", m)
	}
	return append(args, "--json", "-o", outputPath, "-")
}

// normalizePrompts trims prompts and drops blank ones, keeping order.
func normalizePrompts(prompts []string) []string {
	var out []string
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// reviewerFinding is what the aggregate prompt shows for one worker.
type reviewerFinding struct {
	ID     int
	Prompt string
	Output string
	Failed bool
}

func buildAggregatePrompt(instructions string, findings []reviewerFinding) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instructions))
	b.WriteString("\n\n---\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "\n## Reviewer %d\n\n### Prompt\n\n%s\n\n", f.ID, f.Prompt)
		if f.Failed {
			fmt.Fprintf(&b, "### Status\n\nFAILED: %s\n", strings.TrimSpace(f.Output))
			continue
		}
		fmt.Fprintf(&b, "### Findings\n\n%s\n", strings.TrimSpace(f.Output))
	}
	return b.String()
}

func buildFixPrompt(instructions, aggregate string) string {
	return fmt.Sprintf("%s\n\n---\n\n## Aggregated review\n\n%s\n", strings.TrimSpace(instructions), strings.TrimSpace(aggregate))
}
