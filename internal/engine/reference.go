package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reference expressions take the form `namespace.key.path...` inside
// curly braces. The first segment selects the namespace: the literal
// words "blackboard" or "env", or a step identifier. Remaining segments
// walk into the referenced structured value.

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

type templateKind int

const (
	templateLiteral templateKind = iota
	templateFullReference
	templateInterpolated
)

// parsedTemplate is the tagged classification of a string argument.
// A full-reference argument is replaced by the resolved value's native
// type; interpolated strings substitute each occurrence stringified.
type parsedTemplate struct {
	kind       templateKind
	expression string   // set for templateFullReference
	raw        string   // the original string
	refs       []string // every expression found, in order
}

// parseTemplate classifies a string argument before resolution.
func parseTemplate(s string) parsedTemplate {
	matches := placeholderPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return parsedTemplate{kind: templateLiteral, raw: s}
	}
	refs := make([]string, len(matches))
	for i, m := range matches {
		refs[i] = m[1]
	}
	if len(matches) == 1 && s == "{"+refs[0]+"}" {
		return parsedTemplate{kind: templateFullReference, expression: refs[0], raw: s, refs: refs}
	}
	return parsedTemplate{kind: templateInterpolated, raw: s, refs: refs}
}

// ResolveContext bundles everything a reference can point at: a
// blackboard snapshot, the outputs of already-completed steps, and the
// read-only environment mapping supplied once per execution. StepIDs
// holds every step identifier in the plan so the resolver can tell an
// unknown namespace apart from a dependency-ordering bug.
type ResolveContext struct {
	Blackboard map[string]any
	Results    map[string]map[string]any
	Env        map[string]string
	StepIDs    map[string]bool
}

// ResolveArgs resolves every reference expression in an argument
// mapping, recursing into nested mappings and sequences. Arguments that
// are wholly a single `{expression}` keep the resolved value's native
// type so structured values pass through intact.
func ResolveArgs(args map[string]any, rc ResolveContext) (map[string]any, error) {
	resolved := make(map[string]any, len(args))
	for key, value := range args {
		v, err := resolveValue(value, rc)
		if err != nil {
			return nil, err
		}
		resolved[key] = v
	}
	return resolved, nil
}

func resolveValue(value any, rc ResolveContext) (any, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, rc)
	case map[string]any:
		return ResolveArgs(v, rc)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := resolveValue(item, rc)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

func resolveString(s string, rc ResolveContext) (any, error) {
	tmpl := parseTemplate(s)
	switch tmpl.kind {
	case templateLiteral:
		return s, nil
	case templateFullReference:
		return Resolve(tmpl.expression, rc)
	default:
		result := tmpl.raw
		for _, expr := range tmpl.refs {
			v, err := Resolve(expr, rc)
			if err != nil {
				return nil, err
			}
			result = strings.Replace(result, "{"+expr+"}", stringify(v), 1)
		}
		return result, nil
	}
}

// Resolve evaluates a single reference expression against the context.
func Resolve(expression string, rc ResolveContext) (any, error) {
	parts := strings.Split(expression, ".")

	if len(parts) == 1 {
		// Bare key: plain blackboard lookup.
		if v, ok := rc.Blackboard[expression]; ok {
			return v, nil
		}
		return nil, &ResolutionError{Expression: expression, Reason: "missing path"}
	}

	namespace, path := parts[0], parts[1:]

	switch {
	case namespace == "blackboard":
		return walkPath(expression, rc.Blackboard, path)
	case namespace == "env":
		if v, ok := rc.Env[path[0]]; ok {
			return v, nil
		}
		return nil, &ResolutionError{Expression: expression, Reason: "missing path"}
	default:
		output, ok := rc.Results[namespace]
		if ok {
			return walkPath(expression, output, path)
		}
		if rc.StepIDs[namespace] {
			// The validator guarantees referenced steps complete first;
			// reaching here means the scheduler dispatched out of order.
			return nil, fmt.Errorf("%w: step %q referenced by {%s}", ErrDependencyOrder, namespace, expression)
		}
		return nil, &ResolutionError{Expression: expression, Reason: "unknown namespace"}
	}
}

// walkPath applies successive key or index lookups into a structured value.
func walkPath(expression string, root any, path []string) (any, error) {
	current := root
	for _, segment := range path {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[segment]
			if !ok {
				return nil, &ResolutionError{Expression: expression, Reason: "missing path"}
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, &ResolutionError{Expression: expression, Reason: "missing path"}
			}
			current = node[idx]
		default:
			return nil, &ResolutionError{Expression: expression, Reason: "missing path"}
		}
	}
	return current, nil
}

// stringify renders a resolved value for interpolation into a string
// argument. Structured values are JSON-encoded.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case map[string]any, []any:
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprintf("%v", s)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}
