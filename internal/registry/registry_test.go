package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/core"
)

func compileString(t *testing.T, src string) ([]core.Rule, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return Compile(v)
}

func TestCompileBasic(t *testing.T) {
	rules, err := compileString(t, `
		rules: lint: {
			command:  ["scripts/lint.sh", "--strict"]
			severity: "CRITICAL"
			category: "compliance"
			timeout:  "30s"
		}
	`)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	rule := rules[0]
	assert.Equal(t, "lint", rule.ID)
	assert.Equal(t, []string{"scripts/lint.sh", "--strict"}, rule.Command)
	assert.Equal(t, core.SeverityCritical, rule.Severity)
	assert.Equal(t, core.CategoryCompliance, rule.Category)
	assert.Equal(t, 30*time.Second, rule.Timeout)
	assert.Equal(t, 0, rule.Order)
}

func TestCompileQuotedRuleID(t *testing.T) {
	rules, err := compileString(t, `
		rules: "schema-check": {
			command:  ["scripts/schema.sh"]
			severity: "HIGH"
			category: "structure"
			timeout:  "10s"
		}
	`)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "schema-check", rules[0].ID)
}

func TestCompilePreservesDeclarationOrder(t *testing.T) {
	rules, err := compileString(t, `
		rules: {
			zeta: {
				command:  ["z.sh"]
				severity: "MEDIUM"
				category: "content"
				timeout:  "5s"
			}
			alpha: {
				command:  ["a.sh"]
				severity: "MEDIUM"
				category: "content"
				timeout:  "5s"
			}
		}
	`)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "zeta", rules[0].ID, "declaration order, not lexical order")
	assert.Equal(t, 0, rules[0].Order)
	assert.Equal(t, "alpha", rules[1].ID)
	assert.Equal(t, 1, rules[1].Order)
}

func TestCompileMissingCommand(t *testing.T) {
	_, err := compileString(t, `
		rules: bad: {
			severity: "HIGH"
			category: "content"
			timeout:  "5s"
		}
	`)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "bad", ce.RuleID)
	assert.Equal(t, "command", ce.Field)
}

func TestCompileInvalidSeverity(t *testing.T) {
	_, err := compileString(t, `
		rules: bad: {
			command:  ["x.sh"]
			severity: "URGENT"
			category: "content"
			timeout:  "5s"
		}
	`)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "severity", ce.Field)
}

func TestCompileInvalidCategory(t *testing.T) {
	_, err := compileString(t, `
		rules: bad: {
			command:  ["x.sh"]
			severity: "HIGH"
			category: "vibes"
			timeout:  "5s"
		}
	`)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "category", ce.Field)
}

func TestCompileInvalidTimeout(t *testing.T) {
	for _, timeout := range []string{`"soon"`, `"0s"`, `"-5s"`} {
		_, err := compileString(t, `
			rules: bad: {
				command:  ["x.sh"]
				severity: "HIGH"
				category: "content"
				timeout:  `+timeout+`
			}
		`)
		assert.Error(t, err, "timeout %s should be rejected", timeout)
	}
}

func TestCompileEmptyRules(t *testing.T) {
	_, err := compileString(t, `rules: {}`)
	require.Error(t, err)
}

func TestCompileMissingRulesStruct(t *testing.T) {
	_, err := compileString(t, `other: {}`)
	require.Error(t, err)
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	src := `
rules: {
	lint: {
		command:  ["scripts/lint.sh"]
		severity: "CRITICAL"
		category: "compliance"
		timeout:  "30s"
	}
	docs: {
		command:  ["scripts/docs.sh"]
		severity: "MEDIUM"
		category: "content"
		timeout:  "10s"
	}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.cue"), []byte(src), 0o644))

	rules, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "lint", rules[0].ID)
	assert.Equal(t, "docs", rules[1].ID)
}

func TestLoadMissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadEmptyDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
