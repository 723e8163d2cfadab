package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/triage/internal/core"
)

// RegistryOptions holds flags for the registry command.
type RegistryOptions struct {
	*RootOptions
}

// NewRegistryCommand creates the registry command.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegistryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "registry <registry-dir>",
		Short: "Compile and list the rule registry",
		Long: `Compile the CUE rule registry and list the rules it defines, in
registration order. Compilation failures report the offending rule and
field; a directory that compiles cleanly exits zero.

Example:
  triage registry ./rules`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistry(opts, args[0], cmd)
		},
	}

	return cmd
}

// registryReport is the payload for registry output.
type registryReport struct {
	Rules []ruleSummary `json:"rules"`
}

type ruleSummary struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Timeout  string `json:"timeout"`
	Command  string `json:"command"`
	Order    int    `json:"order"`
}

func runRegistry(opts *RegistryOptions, registryDir string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	rules, err := loadRules(registryDir)
	if err != nil {
		return err
	}

	report := &registryReport{}
	for _, r := range rules {
		report.Rules = append(report.Rules, summarize(r))
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	return formatter.Success(report)
}

func summarize(r core.Rule) ruleSummary {
	return ruleSummary{
		ID:       r.ID,
		Category: r.Category.String(),
		Severity: r.Severity.String(),
		Timeout:  r.Timeout.String(),
		Command:  strings.Join(r.Command, " "),
		Order:    r.Order,
	}
}

// String renders the text-mode report.
func (r *registryReport) String() string {
	if len(r.Rules) == 0 {
		return "registry compiles but defines no rules"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d rules:", len(r.Rules))
	for _, rule := range r.Rules {
		fmt.Fprintf(&b, "\n  %-24s %-10s %-8s timeout %-6s %s",
			rule.ID, rule.Category, rule.Severity, rule.Timeout, rule.Command)
	}
	return b.String()
}
