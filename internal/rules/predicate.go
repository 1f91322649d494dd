// Package rules implements the predicate language and mutation engine
// described by the policy's Rule entries: ordered, side-effect-free
// matching over a flattened (time + state document) namespace, followed
// by an atomic batch of mutations.
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/policy"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/timeeval"
)

// namespace is the read-only JSON view a tick's predicates are evaluated
// against: the state document's fields plus the derived time fields,
// addressed via gjson dotted paths (e.g. "escalation.stage",
// "time.overdue_minutes").
type namespace struct {
	blob []byte
}

// buildNamespace flattens doc and the tick's time Fields into one JSON
// blob so atoms can address either side uniformly through gjson.
func buildNamespace(doc *statestore.Document, tf timeeval.Fields) (*namespace, error) {
	view := map[string]interface{}{
		"meta":       doc.Meta,
		"timer":      doc.Timer,
		"escalation": doc.Escalation,
		"renewal":    doc.Renewal,
		"release":    doc.Release,
		"routing":    doc.Routing,
		"time": map[string]interface{}{
			"time_to_deadline_minutes": tf.TimeToDeadlineMin,
			"overdue_minutes":          tf.OverdueMin,
		},
	}
	blob, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("build predicate namespace: %w", err)
	}
	return &namespace{blob: blob}, nil
}

func (n *namespace) get(path string) gjson.Result {
	return gjson.GetBytes(n.blob, path)
}

// MatchPredicate reports whether every atom in p holds against doc/tf.
// Evaluation is total (an atom addressing a missing path simply compares
// against gjson's zero Result) and side-effect-free.
func MatchPredicate(p policy.Predicate, doc *statestore.Document, tf timeeval.Fields) (bool, error) {
	ns, err := buildNamespace(doc, tf)
	if err != nil {
		return false, err
	}
	for _, atom := range p.Atoms {
		ok, err := matchAtom(atom, ns)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchAtom(a policy.Atom, ns *namespace) (bool, error) {
	switch a.Op {
	case "state_is":
		want, _ := a.Value.(string)
		return ns.get("escalation.stage").String() == want, nil
	case "state_in":
		return matchStateIn(a, ns), nil
	case "lt", "lte", "gt", "gte", "eq":
		return matchComparison(a, ns)
	default:
		return false, fmt.Errorf("unknown predicate operator: %q", a.Op)
	}
}

func matchStateIn(a policy.Atom, ns *namespace) bool {
	stage := ns.get("escalation.stage").String()
	list, ok := a.Value.([]interface{})
	if !ok {
		return false
	}
	for _, v := range list {
		if s, ok := v.(string); ok && s == stage {
			return true
		}
	}
	return false
}

func matchComparison(a policy.Atom, ns *namespace) (bool, error) {
	result := ns.get(a.Path)

	switch want := a.Value.(type) {
	case bool:
		got := result.Bool()
		if a.Op != "eq" {
			return false, fmt.Errorf("atom %s: boolean values only support eq", a.Path)
		}
		return got == want, nil
	case string:
		got := result.String()
		if a.Op != "eq" {
			return false, fmt.Errorf("atom %s: string values only support eq", a.Path)
		}
		return got == want, nil
	case int, int64, float64:
		got := result.Float()
		wantF := toFloat(want)
		switch a.Op {
		case "lt":
			return got < wantF, nil
		case "lte":
			return got <= wantF, nil
		case "gt":
			return got > wantF, nil
		case "gte":
			return got >= wantF, nil
		case "eq":
			return got == wantF, nil
		}
	}
	return false, fmt.Errorf("atom %s: unsupported value type %T", a.Path, a.Value)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
