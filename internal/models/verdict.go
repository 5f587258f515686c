package models

// EntityKind names the kinds of entity the rule set can address.
type EntityKind string

// Entity kinds.
const (
	KindFirm   EntityKind = "firm"
	KindOffice EntityKind = "office"
)

// Verdict is the validation outcome for one entity.
type Verdict struct {
	Kind     EntityKind `json:"kind"`
	Key      string     `json:"key"`
	Reasons  []string   `json:"reasons,omitempty"`
	Accepted bool       `json:"accepted"`
}

// DroppedRow is a source row the reader could not attach to any firm, so
// it never reaches validation.
type DroppedRow struct {
	Location string `json:"location"`
	Reason   string `json:"reason"`
}

// Counts summarises a validation run.
type Counts struct {
	FirmsAccepted   int `json:"firmsAccepted"`
	FirmsRejected   int `json:"firmsRejected"`
	OfficesAccepted int `json:"officesAccepted"`
	OfficesRejected int `json:"officesRejected"`
}

// Total is the number of verdicts counted.
func (c Counts) Total() int {
	return c.FirmsAccepted + c.FirmsRejected + c.OfficesAccepted + c.OfficesRejected
}

// Partition is the validator stage output. Every input entity has exactly
// one entry in Verdicts; accepted entities are also present in Accepted.
type Partition struct {
	Accepted Batch     `json:"-"`
	Verdicts []Verdict `json:"verdicts"`
	Counts   Counts    `json:"counts"`
}

// Rejected returns the rejected verdicts in stage order.
func (p *Partition) Rejected() []Verdict {
	var out []Verdict

	for _, v := range p.Verdicts {
		if !v.Accepted {
			out = append(out, v)
		}
	}

	return out
}
