// Package policy evaluates approval policy expressions written in Risor.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/parser"
)

// Facts are the values a policy expression can read.
type Facts struct {
	Amount    float64
	Vendor    string
	RiskScore float64
	Currency  string
}

func (f Facts) globals() map[string]any {
	return map[string]any{
		"amount":     f.Amount,
		"vendor":     f.Vendor,
		"risk_score": f.RiskScore,
		"currency":   f.Currency,
	}
}

// factNames lists the globals provided by Facts, sorted.
var factNames = []string{"amount", "currency", "risk_score", "vendor"}

// Policy is a compiled expression.
type Policy struct {
	source string
	code   *compiler.Code
	engine *Engine
}

// Source returns the expression the policy was compiled from.
func (p *Policy) Source() string {
	return p.source
}

// Evaluate runs the policy against facts and reports whether the result is
// truthy.
func (p *Policy) Evaluate(ctx context.Context, facts Facts) (bool, error) {
	globals := make(map[string]any, len(p.engine.builtins)+len(factNames))
	for name, value := range p.engine.builtins {
		globals[name] = value
	}
	for name, value := range facts.globals() {
		globals[name] = value
	}
	result, err := risor.EvalCode(ctx, p.code, risor.WithGlobals(globals))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy %q: %w", p.source, err)
	}
	return isTruthy(result), nil
}

// Engine compiles policies and caches them by source.
type Engine struct {
	builtins map[string]any
	names    []string

	mu    sync.RWMutex
	cache map[string]*Policy
}

// NewEngine creates a policy engine with the Risor builtins available.
func NewEngine() *Engine {
	builtins := map[string]any{}
	for name, value := range all.Builtins() {
		builtins[name] = value
	}
	names := make([]string, 0, len(builtins)+len(factNames))
	for name := range builtins {
		names = append(names, name)
	}
	names = append(names, factNames...)
	sort.Strings(names)
	return &Engine{builtins: builtins, names: names, cache: map[string]*Policy{}}
}

// Compile parses and compiles source, returning a cached policy when the
// same source was compiled before.
func (e *Engine) Compile(ctx context.Context, source string) (*Policy, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("policy expression is empty")
	}
	e.mu.RLock()
	p, ok := e.cache[source]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	ast, err := parser.Parse(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy %q: %w", source, err)
	}
	code, err := compiler.Compile(ast, compiler.WithGlobalNames(e.names))
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy %q: %w", source, err)
	}
	p = &Policy{source: source, code: code, engine: e}

	e.mu.Lock()
	if cached, ok := e.cache[source]; ok {
		p = cached
	} else {
		e.cache[source] = p
	}
	e.mu.Unlock()
	return p, nil
}

// Evaluate compiles source if needed and evaluates it against facts.
func (e *Engine) Evaluate(ctx context.Context, source string, facts Facts) (bool, error) {
	p, err := e.Compile(ctx, source)
	if err != nil {
		return false, err
	}
	return p.Evaluate(ctx, facts)
}
