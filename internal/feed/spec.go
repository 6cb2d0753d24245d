// Package feed declares the source feeds of the integration run and the
// winner-resolution rules applied to their raw records.
package feed

import "github.com/warlab/hr-datamart/internal/model"

// Spec describes one registered source feed: where its rows come from, how
// the staging loader maps columns onto the composite record, and whether its
// winner dates contribute to the entity spine.
type Spec struct {
	// Name is the registry key, e.g. "worker_job".
	Name string
	// SourceTable is the upstream table identifier carried by rescind rows.
	SourceTable string
	// Staging column names.
	EntityCol    string
	EffectiveCol string
	EntryCol     string
	SeqCol       string
	WIDCol       string
	// Filter restricts rows to a subtype before dedup, e.g. the org feed's
	// Organization_Type. Empty FilterCol means no filter.
	FilterCol   string
	FilterValue string
	// AttrCols maps staging columns onto composite attribute keys.
	AttrCols map[string]string
	// Spine marks feeds whose winner dates define version boundaries.
	Spine bool
}

// Registry holds feed specs in registration order. Iteration order is load
// order, which keeps dedup reports and staging passes deterministic.
type Registry struct {
	order []string
	specs map[string]Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds a spec. Re-registering a name replaces the spec but keeps its
// original position.
func (r *Registry) Register(s Spec) {
	if _, ok := r.specs[s.Name]; !ok {
		r.order = append(r.order, s.Name)
	}
	r.specs[s.Name] = s
}

// Get returns the named spec.
func (r *Registry) Get(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// All returns specs in registration order.
func (r *Registry) All() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// SpineFeeds returns the spine-contributing specs in registration order.
func (r *Registry) SpineFeeds() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, s := range r.All() {
		if s.Spine {
			out = append(out, s)
		}
	}
	return out
}

// Names returns registered feed names in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// DefaultRegistry returns the production feed catalog.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(Spec{
		Name:         "worker_job",
		SourceTable:  "worker_job_events",
		EntityCol:    "Employee_ID",
		EffectiveCol: "Transaction_Effective_Date",
		EntryCol:     "Transaction_Entry_Date",
		SeqCol:       "Sequence_Number",
		WIDCol:       "Transaction_WID",
		AttrCols: map[string]string{
			"Worker_Status":               model.AttrWorkerStatus,
			"Worker_Type":                 model.AttrWorkerType,
			"Business_Title":              model.AttrBusinessTitle,
			"Job_Profile_ID":              model.AttrJobProfile,
			"Business_Site_ID":            model.AttrLocation,
			"Manager_Employee_ID":         model.AttrManager,
			"Management_Level":            model.AttrManagementLevel,
			"Action_Code":                 model.AttrActionCode,
			"Action_Reason_Code":          model.AttrActionReasonCode,
			"Terminated":                  model.AttrTerminated,
			"Primary_Termination_Reason":  model.AttrTermReasonCode,
			"Regrettable_Termination":     model.AttrRegrettableTerm,
			"Retired":                     model.AttrRetired,
			"Pay_Through_Date":            model.AttrPayThroughDate,
			"Work_Model_Type":             model.AttrWorkModel,
			"Time_Type":                   model.AttrTimeType,
		},
		Spine: true,
	})

	// The org feed lands three rows per event, one per organization type.
	// Each subtype registers as its own feed so dedup and as-of resolution
	// treat them independently.
	orgSpec := func(name, orgType, attr string) Spec {
		return Spec{
			Name:         name,
			SourceTable:  "worker_org_assignments",
			EntityCol:    "Employee_ID",
			EffectiveCol: "Transaction_Effective_Date",
			EntryCol:     "Transaction_Entry_Moment",
			SeqCol:       "Sequence_Number",
			WIDCol:       "Transaction_WID",
			FilterCol:    "Organization_Type",
			FilterValue:  orgType,
			AttrCols:     map[string]string{"Organization_ID": attr},
			Spine:        true,
		}
	}
	r.Register(orgSpec("worker_org_cost_center", "Cost_Center", model.AttrCostCenter))
	r.Register(orgSpec("worker_org_company", "Company", model.AttrCompany))
	r.Register(orgSpec("worker_org_supervisory", "Supervisory", model.AttrSupervisoryOrg))

	r.Register(Spec{
		Name:         "worker_comp",
		SourceTable:  "worker_comp_events",
		EntityCol:    "Employee_ID",
		EffectiveCol: "Transaction_Effective_Date",
		EntryCol:     "Transaction_Entry_Moment",
		SeqCol:       "Sequence_Number",
		WIDCol:       "Transaction_WID",
		AttrCols: map[string]string{
			"Compensation_Grade":         model.AttrGrade,
			"Compensation_Grade_Profile": model.AttrGradeProfile,
			"Base_Pay_Amount":            model.AttrBasePay,
			"Base_Pay_Currency":          model.AttrBasePayCurrency,
			"Base_Pay_Frequency":         model.AttrBasePayFrequency,
		},
		Spine: true,
	})

	return r
}
