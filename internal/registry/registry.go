// Package registry loads rule definitions from CUE files and compiles them
// once, at load time, into typed rules with closed severity and category
// enums. Nothing downstream ever re-parses or string-matches rule metadata.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/triage/internal/core"
)

// A registry file declares rules under a top-level "rules" struct:
//
//	rules: lint: {
//	    command:  ["scripts/lint.sh", "--strict"]
//	    severity: "CRITICAL"
//	    category: "compliance"
//	    timeout:  "30s"
//	}
const rulesPath = "rules"

// CompileError represents a registry compilation error with source position.
type CompileError struct {
	RuleID  string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	loc := ""
	if e.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.RuleID != "" {
		return fmt.Sprintf("%srule %q: %s: %s", loc, e.RuleID, e.Field, e.Message)
	}
	return fmt.Sprintf("%s%s: %s", loc, e.Field, e.Message)
}

// Load compiles every .cue file in dir into the rule set. Rule order follows
// source declaration position; that order is the fixed-mode execution order
// and the final prioritization tie-breaker.
func Load(dir string) ([]core.Rule, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("registry directory not found: %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("accessing registry directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning registry directory: %w", err)
	}
	if len(cueFiles) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances(cueFiles, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}

	return Compile(value)
}

// Compile parses a built CUE value into the typed rule set. Exposed
// separately from Load so tests can compile inline CUE sources.
func Compile(value cue.Value) ([]core.Rule, error) {
	rulesVal := value.LookupPath(cue.ParsePath(rulesPath))
	if !rulesVal.Exists() {
		return nil, &CompileError{Field: rulesPath, Message: "top-level rules struct is required", Pos: value.Pos()}
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, &CompileError{Field: rulesPath, Message: err.Error(), Pos: rulesVal.Pos()}
	}

	type positioned struct {
		rule core.Rule
		pos  token.Pos
	}
	var compiled []positioned
	for iter.Next() {
		sel := iter.Selector()
		id := sel.String()
		if sel.LabelType() == cue.StringLabel {
			// Quoted field names (e.g. "schema-check") carry their quotes
			// in String(); Unquoted strips them.
			id = sel.Unquoted()
		}
		rule, err := compileRule(id, iter.Value())
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, positioned{rule: rule, pos: iter.Value().Pos()})
	}

	if len(compiled) == 0 {
		return nil, &CompileError{Field: rulesPath, Message: "at least one rule is required", Pos: rulesVal.Pos()}
	}

	// Declaration position defines registration order. CUE's field iteration
	// order is not guaranteed, so sort by source position explicitly.
	sort.SliceStable(compiled, func(i, j int) bool {
		pi, pj := compiled[i].pos, compiled[j].pos
		if pi.Filename() != pj.Filename() {
			return pi.Filename() < pj.Filename()
		}
		if pi.Line() != pj.Line() {
			return pi.Line() < pj.Line()
		}
		return pi.Column() < pj.Column()
	})

	rules := make([]core.Rule, len(compiled))
	for i, c := range compiled {
		rules[i] = c.rule
		rules[i].Order = i
	}

	return rules, nil
}

// compileRule parses one rule struct.
func compileRule(id string, v cue.Value) (core.Rule, error) {
	rule := core.Rule{ID: id}

	cmdVal := v.LookupPath(cue.ParsePath("command"))
	if !cmdVal.Exists() {
		return rule, &CompileError{RuleID: id, Field: "command", Message: "command is required", Pos: v.Pos()}
	}
	cmdIter, err := cmdVal.List()
	if err != nil {
		return rule, &CompileError{RuleID: id, Field: "command", Message: "command must be a list of strings", Pos: cmdVal.Pos()}
	}
	for cmdIter.Next() {
		arg, err := cmdIter.Value().String()
		if err != nil {
			return rule, &CompileError{RuleID: id, Field: "command", Message: "command elements must be strings", Pos: cmdIter.Value().Pos()}
		}
		rule.Command = append(rule.Command, arg)
	}
	if len(rule.Command) == 0 {
		return rule, &CompileError{RuleID: id, Field: "command", Message: "command must not be empty", Pos: cmdVal.Pos()}
	}

	sevVal := v.LookupPath(cue.ParsePath("severity"))
	if !sevVal.Exists() {
		return rule, &CompileError{RuleID: id, Field: "severity", Message: "severity is required", Pos: v.Pos()}
	}
	sevStr, err := sevVal.String()
	if err != nil {
		return rule, &CompileError{RuleID: id, Field: "severity", Message: "severity must be a string", Pos: sevVal.Pos()}
	}
	rule.Severity, err = core.ParseSeverity(sevStr)
	if err != nil {
		return rule, &CompileError{RuleID: id, Field: "severity", Message: err.Error(), Pos: sevVal.Pos()}
	}

	catVal := v.LookupPath(cue.ParsePath("category"))
	if !catVal.Exists() {
		return rule, &CompileError{RuleID: id, Field: "category", Message: "category is required", Pos: v.Pos()}
	}
	catStr, err := catVal.String()
	if err != nil {
		return rule, &CompileError{RuleID: id, Field: "category", Message: "category must be a string", Pos: catVal.Pos()}
	}
	rule.Category, err = core.ParseCategory(catStr)
	if err != nil {
		return rule, &CompileError{RuleID: id, Field: "category", Message: err.Error(), Pos: catVal.Pos()}
	}

	timeoutVal := v.LookupPath(cue.ParsePath("timeout"))
	if !timeoutVal.Exists() {
		return rule, &CompileError{RuleID: id, Field: "timeout", Message: "timeout is required", Pos: v.Pos()}
	}
	timeoutStr, err := timeoutVal.String()
	if err != nil {
		return rule, &CompileError{RuleID: id, Field: "timeout", Message: "timeout must be a duration string", Pos: timeoutVal.Pos()}
	}
	rule.Timeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return rule, &CompileError{RuleID: id, Field: "timeout", Message: err.Error(), Pos: timeoutVal.Pos()}
	}
	if rule.Timeout <= 0 {
		return rule, &CompileError{RuleID: id, Field: "timeout", Message: "timeout must be positive", Pos: timeoutVal.Pos()}
	}

	return rule, nil
}

// findCUEFiles returns all non-hidden .cue files under dir.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".cue") && !strings.HasPrefix(d.Name(), ".") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
