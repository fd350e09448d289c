package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/refund"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/retrieval"
)

// #region engine
// Engine evaluates compiled rule definitions. Programs are compiled once in
// NewEngine; Evaluate is pure and safe for concurrent use.
type Engine struct {
	rules  []compiledRule
	config Config
	logger *slog.Logger
}

type compiledRule struct {
	def     Definition
	program cel.Program
}

// NewEnv declares the attributes and thresholds rule expressions may read.
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("category", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("reason", cel.StringType),
		cel.Variable("order_value", cel.DoubleType),
		cel.Variable("elapsed_minutes", cel.IntType),
		cel.Variable("high_value_limit", cel.DoubleType),
		cel.Variable("critical_delay_minutes", cel.IntType),
		cel.Variable("significant_delay_minutes", cel.IntType),
	)
}

// NewEngine compiles defs in the given order and sorts them stably by tier,
// so declaration order decides ties within a tier. A definition that does not
// compile, or whose expression is neither bool nor string, fails the engine.
func NewEngine(defs []Definition, config Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	env, err := NewEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	seen := make(map[string]bool, len(defs))
	compiled := make([]compiledRule, 0, len(defs))
	for _, def := range defs {
		if def.ID == "" {
			return nil, errors.New("rule with empty id")
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("rule %s declared twice", def.ID)
		}
		seen[def.ID] = true
		if len(def.Branches) == 0 {
			return nil, fmt.Errorf("rule %s has no branches", def.ID)
		}
		prog, err := compile(env, def.Expression, config.CostLimit)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", def.ID, err)
		}
		compiled = append(compiled, compiledRule{def: def, program: prog})
	}
	stableSortByTier(compiled)

	return &Engine{rules: compiled, config: config, logger: logger.With("component", "rules")}, nil
}

// NewDefaultEngine compiles the production catalog.
func NewDefaultEngine(config Config, logger *slog.Logger) (*Engine, error) {
	return NewEngine(Catalog(), config, logger)
}

func compile(env *cel.Env, expr string, costLimit uint64) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.StringType) {
		return nil, fmt.Errorf("expression must yield bool or string, got %s", out)
	}
	opts := []cel.ProgramOption{}
	if costLimit > 0 {
		opts = append(opts, cel.CostLimit(costLimit))
	}
	prog, err := env.Program(ast, opts...)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

func stableSortByTier(rs []compiledRule) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].def.Tier < rs[j].def.Tier })
}

// Rules returns the definitions in evaluation order.
func (e *Engine) Rules() []Definition {
	out := make([]Definition, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.def
	}
	return out
}

// #endregion engine

// #region evaluate
// Evaluate runs the rules tier by tier. Every rule of a tier is evaluated and
// recorded; the first declared non-abstaining rule of the first tier that has
// one wins and later tiers are skipped. A rule requiring a policy that is not
// among retrieved abstains.
func (e *Engine) Evaluate(req refund.Request, retrieved []retrieval.Result) Result {
	available := make(map[string]bool, len(retrieved))
	for _, r := range retrieved {
		available[r.Document.ID] = true
	}
	vars := e.activation(req)

	res := Result{decisive: -1}
	for i := 0; i < len(e.rules); {
		tier := e.rules[i].def.Tier
		for ; i < len(e.rules) && e.rules[i].def.Tier == tier; i++ {
			v := e.evaluateRule(e.rules[i], vars, available, req)
			res.Verdicts = append(res.Verdicts, v)
			if v.Outcome != Abstain && res.decisive < 0 {
				res.decisive = len(res.Verdicts) - 1
			}
		}
		if res.decisive >= 0 {
			break
		}
	}

	if v, ok := res.Decisive(); ok {
		e.logger.Debug("rule fired", "rule_id", v.RuleID, "code", v.Code, "outcome", v.Outcome, "tier", v.Tier.String())
	} else {
		e.logger.Debug("all rules abstained", "evaluated", len(res.Verdicts))
	}
	return res
}

func (e *Engine) activation(req refund.Request) map[string]any {
	return map[string]any{
		"category":                  string(req.Category),
		"status":                    string(req.OrderStatus),
		"reason":                    string(req.ReasonCode),
		"order_value":               req.OrderValue,
		"elapsed_minutes":           int64(req.ElapsedMinutes),
		"high_value_limit":          e.config.HighValueLimit,
		"critical_delay_minutes":    int64(e.config.CriticalDelayMinutes),
		"significant_delay_minutes": int64(e.config.SignificantDelayMinutes),
	}
}

func (e *Engine) evaluateRule(rule compiledRule, vars map[string]any, available map[string]bool, req refund.Request) (v Verdict) {
	def := rule.def
	v = Verdict{RuleID: def.ID, Tier: def.Tier, Outcome: Abstain}

	defer func() {
		if r := recover(); r != nil {
			v = e.fault(def, fmt.Errorf("%w: panic: %v", ErrRuleFault, r))
		}
	}()

	out, _, err := rule.program.Eval(vars)
	if err != nil {
		return e.fault(def, fmt.Errorf("%w: %v", ErrRuleFault, err))
	}

	var key string
	switch val := out.Value().(type) {
	case bool:
		if val {
			key = BranchMatch
		}
	case string:
		key = val
	default:
		return e.fault(def, fmt.Errorf("%w: unexpected result type %T", ErrRuleFault, val))
	}
	if key == "" {
		return v
	}

	branch, ok := def.Branches[key]
	if !ok {
		return e.fault(def, fmt.Errorf("%w: unknown branch %q", ErrRuleFault, key))
	}

	if def.RequiresPolicy != "" && e.config.RequirePolicyMatch && !available[def.RequiresPolicy] {
		v.Code = branch.Code
		v.Rationale = fmt.Sprintf("policy %s not retrieved", def.RequiresPolicy)
		return v
	}

	v.Code = branch.Code
	v.Outcome = branch.Outcome
	v.Confidence = branch.Confidence
	v.Strength = branch.Strength
	v.PolicyID = def.RequiresPolicy
	v.Rationale = interpolate(branch.Rationale, req)
	return v
}

func (e *Engine) fault(def Definition, err error) Verdict {
	e.logger.Warn("rule faulted, treating as abstain", "rule_id", def.ID, "error", err)
	return Verdict{RuleID: def.ID, Tier: def.Tier, Outcome: Abstain, Fault: err, Rationale: err.Error()}
}

func interpolate(tmpl string, req refund.Request) string {
	return strings.NewReplacer(
		"{value}", strconv.FormatFloat(req.OrderValue, 'f', 2, 64),
		"{minutes}", strconv.Itoa(req.ElapsedMinutes),
	).Replace(tmpl)
}

// #endregion evaluate
