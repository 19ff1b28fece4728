// Package eval evaluates step guard expressions against an incident using
// expr-lang. Guards see a flat environment describing the incident.
package eval

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ormasoftchile/irflow/pkg/incident"
)

// Env builds the expression environment for an incident.
//
//	severity, incident_type, title, phase, status   string
//	affected_assets, playbook_executed               []string
//	indicators                                       map[string][]string
//	asset_count                                      int
func Env(inc *incident.Incident) map[string]any {
	inds := make(map[string][]string, len(inc.Indicators))
	for k, v := range inc.Indicators {
		inds[k] = append([]string(nil), v...)
	}
	return map[string]any{
		"severity":          inc.Severity,
		"incident_type":     inc.Type,
		"title":             inc.Title,
		"phase":             inc.Phase.String(),
		"status":            inc.Status.String(),
		"affected_assets":   append([]string{}, inc.AffectedAssets...),
		"playbook_executed": append([]string{}, inc.Executed...),
		"indicators":        inds,
		"asset_count":       len(inc.AffectedAssets),
	}
}

// sampleEnv has the same shape as Env and is used for compile-time checks.
var sampleEnv = Env(incident.New("", "", "", "", "", nil, nil, time.Time{}))

var (
	cacheMu sync.Mutex
	cache   = map[string]*vm.Program{}
)

// Compile type-checks a guard expression. Empty expressions are valid.
func Compile(src string) (*vm.Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if p, ok := cache[src]; ok {
		return p, nil
	}
	p, err := expr.Compile(src, expr.Env(sampleEnv), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", src, err)
	}
	cache[src] = p
	return p, nil
}

// EvalBool evaluates src against env. An empty expression is true.
func EvalBool(src string, env map[string]any) (bool, error) {
	program, err := Compile(src)
	if err != nil {
		return false, err
	}
	if program == nil {
		return true, nil
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", src, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T: %v)", src, output, output)
	}
	return result, nil
}

// Guard evaluates src against inc.
func Guard(src string, inc *incident.Incident) (bool, error) {
	if strings.TrimSpace(src) == "" {
		return true, nil
	}
	return EvalBool(src, Env(inc))
}
