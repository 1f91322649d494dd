// Package policy loads and validates the immutable snapshot of states,
// rules, plans, and constants that the Rule Engine evaluates each tick.
package policy

// State is one named stage in the escalation ladder.
type State struct {
	Name       string `yaml:"name"`
	Order      int    `yaml:"order"`
	OutwardOK  bool   `yaml:"outward_ok"`
}

// Atom is one predicate comparison, e.g. `{path:
// time.overdue_minutes, op: gt, value: 0}`. Path is the dotted field
// path the comparison reads (unused by state_is and state_in); Op is the
// operator (see internal/rules for the supported set); Value is the
// right-hand side as read from policy.
type Atom struct {
	Path  string      `yaml:"path"`
	Op    string      `yaml:"op"`
	Value interface{} `yaml:"value"`
}

// Predicate is a conjunction of Atoms; it matches iff every atom matches.
type Predicate struct {
	Atoms []Atom `yaml:"atoms"`
}

// Mutation is one named operation applied after all rules for a tick
// have been evaluated. Kind is one of set_state, set, clear, inc.
type Mutation struct {
	Kind  string      `yaml:"kind"`
	Path  string      `yaml:"path"`
	Value interface{} `yaml:"value"`
}

// Rule is one ordered entry in the Rule Engine's program.
type Rule struct {
	ID          string      `yaml:"id"`
	Description string      `yaml:"description"`
	When        Predicate   `yaml:"when"`
	Then        []Mutation  `yaml:"then"`
	Stop        bool        `yaml:"stop"`
	Enabled     bool        `yaml:"enabled"`
	Locked      bool        `yaml:"locked"`
}

// ActionDefinition is one plan entry: an adapter invocation bound to a
// stage.
type ActionDefinition struct {
	ID          string            `yaml:"id"`
	Adapter     string            `yaml:"adapter"`
	Channel     string            `yaml:"channel"`
	Template    string            `yaml:"template"`
	Constraints map[string]string `yaml:"constraints"`
}

// Document is the on-disk shape of a policy file set, before it is
// validated and frozen into a Snapshot.
type Document struct {
	States    []State                       `yaml:"states"`
	Rules     []Rule                        `yaml:"rules"`
	Plans     map[string][]ActionDefinition `yaml:"plans"`
	Constants map[string]int                `yaml:"constants"`
	Version   int                           `yaml:"version"`
}

// Snapshot is the immutable, validated policy in force for one tick.
type Snapshot struct {
	Version   int
	States    map[string]State
	StateList []State // ordered ascending by Order, for lowest-order lookups
	Rules     []Rule
	Plans     map[string][]ActionDefinition
	Constants map[string]int
}

// LowestState returns the state with the smallest Order, the target of a
// renewal reset.
func (s *Snapshot) LowestState() State {
	return s.StateList[0]
}

// StateOrder returns the Order of a named state, or -1 if unknown.
func (s *Snapshot) StateOrder(name string) int {
	st, ok := s.States[name]
	if !ok {
		return -1
	}
	return st.Order
}

// KnownAdapters returns the set of adapter names referenced by any plan.
func (s *Snapshot) KnownAdapters() map[string]bool {
	out := map[string]bool{}
	for _, actions := range s.Plans {
		for _, a := range actions {
			out[a.Adapter] = true
		}
	}
	return out
}
