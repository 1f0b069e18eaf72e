// Package dsl parses the compact routing-specification grammar used by
// administrative tooling:
//
//	category.subtype(cond1,cond2,...):dep.pos->dep.pos->...
//
// The condition list is optional. "_" as a department stands for the
// activity creator's own department, and a trailing "..." marks the template
// as requiring post-approval task tracking. Conditions are "prop<op>value"
// with op one of >=, <=, >, <, =. The text is parsed once at
// template-authoring time; the engine never sees it.
package dsl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CreatorDepartment is the department key standing for the creator's own
// department.
const CreatorDepartment = "_"

// TaskSuffix marks a routing chain as task-tracked.
const TaskSuffix = "..."

// ErrSyntax wraps every parse failure.
var ErrSyntax = errors.New("routing spec syntax error")

// Step is one department/position pair of the chain.
type Step struct {
	Department string
	Position   string
}

// Condition is one parsed guard. Value is a float64 for numeric literals,
// a bool for true/false, and a string otherwise.
type Condition struct {
	Prop     string
	Operator string
	Value    interface{}
}

// Template is the parse result.
type Template struct {
	Category   string
	Subtype    string
	NeedTask   bool
	Conditions []Condition
	Steps      []Step
}

// operators in match order: two-character ops before their one-character
// prefixes.
var operators = []struct {
	token string
	name  string
}{
	{">=", "gte"},
	{"<=", "lte"},
	{">", "gt"},
	{"<", "lt"},
	{"=", "eq"},
}

// Parse parses one routing specification line.
func Parse(text string) (*Template, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty spec", ErrSyntax)
	}

	head, chain, err := splitHeadChain(text)
	if err != nil {
		return nil, err
	}

	tpl := &Template{}
	if err := parseHead(head, tpl); err != nil {
		return nil, err
	}
	if err := parseChain(chain, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// splitHeadChain splits at the colon terminating the head, which is the one
// after the condition list's closing parenthesis when a list is present.
func splitHeadChain(text string) (head, chain string, err error) {
	sep := strings.Index(text, ":")
	if open := strings.Index(text, "("); open >= 0 && open < sep || open >= 0 && sep < 0 {
		closing := strings.Index(text, ")")
		if closing < open {
			return "", "", fmt.Errorf("%w: unbalanced parentheses", ErrSyntax)
		}
		rel := strings.Index(text[closing:], ":")
		if rel < 0 {
			return "", "", fmt.Errorf("%w: missing step chain", ErrSyntax)
		}
		sep = closing + rel
	}
	if sep < 0 {
		return "", "", fmt.Errorf("%w: missing step chain", ErrSyntax)
	}
	return strings.TrimSpace(text[:sep]), strings.TrimSpace(text[sep+1:]), nil
}

func parseHead(head string, tpl *Template) error {
	var condPart string
	if open := strings.Index(head, "("); open >= 0 {
		if !strings.HasSuffix(head, ")") {
			return fmt.Errorf("%w: unbalanced parentheses", ErrSyntax)
		}
		condPart = head[open+1 : len(head)-1]
		head = head[:open]
	}

	category, subtype, ok := strings.Cut(head, ".")
	if !ok || category == "" || subtype == "" {
		return fmt.Errorf("%w: expected category.subtype, got %q", ErrSyntax, head)
	}
	tpl.Category = strings.TrimSpace(category)
	tpl.Subtype = strings.TrimSpace(subtype)

	if condPart == "" {
		return nil
	}
	for _, raw := range strings.Split(condPart, ",") {
		cond, err := parseCondition(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		tpl.Conditions = append(tpl.Conditions, cond)
	}
	return nil
}

func parseCondition(raw string) (Condition, error) {
	for _, op := range operators {
		idx := strings.Index(raw, op.token)
		if idx <= 0 {
			continue
		}
		prop := strings.TrimSpace(raw[:idx])
		val := strings.TrimSpace(raw[idx+len(op.token):])
		if prop == "" || val == "" {
			return Condition{}, fmt.Errorf("%w: malformed condition %q", ErrSyntax, raw)
		}
		return Condition{Prop: prop, Operator: op.name, Value: parseValue(val)}, nil
	}
	return Condition{}, fmt.Errorf("%w: no comparator in condition %q", ErrSyntax, raw)
}

func parseValue(raw string) interface{} {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return strings.Trim(raw, `"'`)
}

func parseChain(chain string, tpl *Template) error {
	chain = strings.TrimSpace(chain)
	if strings.HasSuffix(chain, TaskSuffix) {
		tpl.NeedTask = true
		chain = strings.TrimSpace(strings.TrimSuffix(chain, TaskSuffix))
		chain = strings.TrimSpace(strings.TrimSuffix(chain, "->"))
	}
	if chain == "" {
		return fmt.Errorf("%w: empty step chain", ErrSyntax)
	}

	for _, raw := range strings.Split(chain, "->") {
		raw = strings.TrimSpace(raw)
		dep, pos, ok := strings.Cut(raw, ".")
		if !ok || dep == "" || pos == "" {
			return fmt.Errorf("%w: expected dep.pos, got %q", ErrSyntax, raw)
		}
		tpl.Steps = append(tpl.Steps, Step{
			Department: strings.TrimSpace(dep),
			Position:   strings.TrimSpace(pos),
		})
	}
	return nil
}
