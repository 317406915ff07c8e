package preview

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// Field names a tracked snapshot value.
type Field string

const (
	FieldPotentialPayout   Field = "potentialPayout"
	FieldKellyStake        Field = "kellyStake"
	FieldRiskAdjustedStake Field = "riskAdjustedStake"
	FieldExpectedValue     Field = "expectedValue"
)

// Fields lists every tracked field in display order.
var Fields = []Field{
	FieldPotentialPayout,
	FieldKellyStake,
	FieldRiskAdjustedStake,
	FieldExpectedValue,
}

// Snapshot is the last known payout preview for one event.
// It is a value; every update stores a new one.
type Snapshot struct {
	PotentialPayout   float64   `json:"potential_payout"`
	KellyStake        float64   `json:"kelly_stake"`
	RiskAdjustedStake float64   `json:"risk_adjusted_stake"`
	ExpectedValue     float64   `json:"expected_value"`
	Version           uint64    `json:"version,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Value returns the snapshot's value for f.
func (s Snapshot) Value(f Field) float64 {
	switch f {
	case FieldPotentialPayout:
		return s.PotentialPayout
	case FieldKellyStake:
		return s.KellyStake
	case FieldRiskAdjustedStake:
		return s.RiskAdjustedStake
	case FieldExpectedValue:
		return s.ExpectedValue
	}
	return 0
}

// Update is a partial snapshot. Nil fields are absent and leave the stored
// value untouched.
type Update struct {
	PotentialPayout   *float64
	KellyStake        *float64
	RiskAdjustedStake *float64
	ExpectedValue     *float64

	// Version is an optional monotonic sequence number. Zero means unversioned.
	Version uint64
}

// Float returns a pointer to v for building an Update.
func Float(v float64) *float64 {
	return &v
}

// Empty reports whether the update carries no usable field.
// Non-finite values count as absent.
func (u Update) Empty() bool {
	for _, f := range Fields {
		if usable(u.field(f)) {
			return false
		}
	}
	return true
}

func (u Update) field(f Field) *float64 {
	switch f {
	case FieldPotentialPayout:
		return u.PotentialPayout
	case FieldKellyStake:
		return u.KellyStake
	case FieldRiskAdjustedStake:
		return u.RiskAdjustedStake
	case FieldExpectedValue:
		return u.ExpectedValue
	}
	return nil
}

func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// merge applies u over s and returns the result and the fields whose value
// changed. seen holds the fields delivered so far and is updated in place; a
// field arriving for the first time after the baseline counts as changed.
// When diff is false nothing is reported as changed.
func merge(s Snapshot, seen FieldSet, u Update, diff bool) (Snapshot, FieldSet) {
	changed := FieldSet{}
	set := func(f Field, dst *float64) {
		v := u.field(f)
		if !usable(v) {
			return
		}
		if diff && (!seen.Has(f) || *dst != *v) {
			changed[f] = struct{}{}
		}
		seen[f] = struct{}{}
		*dst = *v
	}

	set(FieldPotentialPayout, &s.PotentialPayout)
	set(FieldKellyStake, &s.KellyStake)
	set(FieldRiskAdjustedStake, &s.RiskAdjustedStake)
	set(FieldExpectedValue, &s.ExpectedValue)

	if u.Version > s.Version {
		s.Version = u.Version
	}
	return s, changed
}

// FieldSet is a set of changed fields. Sets handed out by the store are
// copies and may be modified by the caller.
type FieldSet map[Field]struct{}

// NewFieldSet builds a set from fields.
func NewFieldSet(fields ...Field) FieldSet {
	fs := make(FieldSet, len(fields))
	for _, f := range fields {
		fs[f] = struct{}{}
	}
	return fs
}

// Has reports whether f is in the set.
func (fs FieldSet) Has(f Field) bool {
	_, ok := fs[f]
	return ok
}

// Len returns the number of fields in the set.
func (fs FieldSet) Len() int {
	return len(fs)
}

// Slice returns the fields sorted by name.
func (fs FieldSet) Slice() []Field {
	out := make([]Field, 0, len(fs))
	for f := range fs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (fs FieldSet) Clone() FieldSet {
	out := make(FieldSet, len(fs))
	for f := range fs {
		out[f] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array of names.
func (fs FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.Slice())
}

// UnmarshalJSON decodes an array of names.
func (fs *FieldSet) UnmarshalJSON(data []byte) error {
	var names []Field
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*fs = NewFieldSet(names...)
	return nil
}

// State is the lifecycle state of one event key.
type State int

const (
	StateUninitialized State = iota
	StateIdle
	StateRecentlyChanged
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecentlyChanged:
		return "recently_changed"
	default:
		return "uninitialized"
	}
}
