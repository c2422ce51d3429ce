package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/nsharma/weft/internal/engine"
	"github.com/nsharma/weft/internal/observability"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a capability invocation to be evaluated.
type Request struct {
	Capability string
	Arguments  string
	ChatID     string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates capability invocations against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	DeniedCapabilities map[string]bool
	DeniedRegex        []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedCapabilities: make(map[string]bool),
		DeniedRegex:        make([]*regexp.Regexp, 0),
	}
}

func (e *DefaultPolicyEngine) DenyCapability(name string) {
	e.DeniedCapabilities[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedCapabilities[req.Capability] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Capability '%s' is restricted by system policy", req.Capability),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

// AsPolicyFunc adapts a PolicyEngine into the hook the executor calls
// before each step. A deny becomes a step failure.
func AsPolicyFunc(pe PolicyEngine, logger *observability.Logger) engine.PolicyFunc {
	return func(ctx context.Context, capability string, args map[string]any) error {
		rawArgs, _ := json.Marshal(args)
		chatID, _ := ctx.Value("chatID").(string)

		res, err := pe.Evaluate(ctx, Request{
			Capability: capability,
			Arguments:  string(rawArgs),
			ChatID:     chatID,
		})
		if err != nil {
			return fmt.Errorf("policy evaluation failed: %v", err)
		}

		if logger != nil {
			logger.LogPolicyCheck(chatID, "", capability, string(res.Effect), res.Reason)
		}
		if res.Effect == EffectDeny {
			return fmt.Errorf("denied by policy: %s", res.Reason)
		}
		return nil
	}
}
