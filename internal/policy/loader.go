package policy

import (
	"os"
	"sort"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	coerrors "github.com/cyberpunk042/continuity-orchestrator-sub000/internal/errors"
)

// LockedRuleIDs names the three built-in rules the loader refuses to let
// a policy file disable. Their behavior is implemented directly by the
// Rule Engine (internal/rules), not by a `when`/`then` pair in the
// document; a policy file lists them only to toggle enabled=false
// attempts, which the loader rejects.
var LockedRuleIDs = map[string]bool{
	"monotonic_progression": true,
	"renewal_resets":        true,
	"lockout_max_failed":    true,
}

// Load reads a policy document from path and validates it into an
// immutable Snapshot. knownAdapters is the set of adapter names actually
// registered with the Adapter Registry; a plan naming anything outside
// it fails the load rather than silently degrading to not_configured at
// execution time.
func Load(path string, knownAdapters map[string]bool) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, coerrors.Wrap(coerrors.ReasonPolicyInvalid, "read policy file", err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, coerrors.Wrap(coerrors.ReasonPolicyInvalid, "parse policy file", err)
	}
	return Validate(&doc, knownAdapters)
}

// Validate checks a Document for referential and structural integrity
// and, if it passes, freezes it into a Snapshot. All errors are
// accumulated via multierror so a single load reports every problem,
// not just the first. knownAdapters is the set of adapter names a plan
// entry's Adapter field is allowed to reference; pass nil to skip that
// check (e.g. from tests that don't care about adapter wiring).
func Validate(doc *Document, knownAdapters map[string]bool) (*Snapshot, error) {
	var errs *multierror.Error

	states := make(map[string]State, len(doc.States))
	orders := make(map[int]string, len(doc.States))
	for _, st := range doc.States {
		if _, dup := states[st.Name]; dup {
			errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "duplicate state name: "+st.Name))
			continue
		}
		if other, dup := orders[st.Order]; dup {
			errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "duplicate state order between "+st.Name+" and "+other))
		}
		states[st.Name] = st
		orders[st.Order] = st.Name
	}

	ruleIDs := make(map[string]bool, len(doc.Rules))
	for _, r := range doc.Rules {
		if ruleIDs[r.ID] {
			errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "duplicate rule id: "+r.ID))
		}
		ruleIDs[r.ID] = true

		if r.Locked && !r.Enabled {
			errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "locked rule must be enabled: "+r.ID))
		}
		if LockedRuleIDs[r.ID] && !r.Locked {
			errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "built-in rule must be locked: "+r.ID))
		}

		for _, m := range r.Then {
			if m.Kind == "set_state" {
				target, _ := m.Value.(string)
				if _, ok := states[target]; !ok {
					errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "rule "+r.ID+" targets unknown state: "+target))
				}
			}
		}
	}

	plans := make(map[string][]ActionDefinition, len(doc.Plans))
	for stage, actions := range doc.Plans {
		if _, ok := states[stage]; !ok {
			errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "plan references unknown stage: "+stage))
			continue
		}
		seen := map[string]bool{}
		for _, a := range actions {
			if seen[a.ID] {
				errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "duplicate action id in stage "+stage+": "+a.ID))
			}
			seen[a.ID] = true
			if knownAdapters != nil && !knownAdapters[a.Adapter] {
				errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "plan action "+a.ID+" in stage "+stage+" references unknown adapter: "+a.Adapter))
			}
		}
		plans[stage] = actions
	}

	for name, v := range doc.Constants {
		if v < 0 {
			errs = multierror.Append(errs, coerrors.New(coerrors.ReasonPolicyInvalid, "constant must be non-negative: "+name))
		}
	}

	if errs.ErrorOrNil() != nil {
		return nil, errs
	}

	ordered := make([]State, 0, len(doc.States))
	ordered = append(ordered, doc.States...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	return &Snapshot{
		Version:   doc.Version,
		States:    states,
		StateList: ordered,
		Rules:     doc.Rules,
		Plans:     plans,
		Constants: doc.Constants,
	}, nil
}
