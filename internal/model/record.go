package model

import "time"

// Attribute keys for the composite worker-assignment record. Each source feed
// contributes a disjoint subset; the assembler merges them into one map.
const (
	AttrWorkerStatus       = "worker_status"
	AttrWorkerType         = "worker_type"
	AttrBusinessTitle      = "business_title"
	AttrJobProfile         = "job_profile_id"
	AttrLocation           = "business_site_id"
	AttrManager            = "manager_id"
	AttrManagementLevel    = "management_level"
	AttrActionCode         = "action_code"
	AttrActionReasonCode   = "action_reason_code"
	AttrTerminated         = "terminated"
	AttrTermReasonCode     = "termination_reason_code"
	AttrRegrettableTerm    = "regrettable_termination"
	AttrRetired            = "retired"
	AttrPayThroughDate     = "pay_through_date"
	AttrWorkModel          = "work_model_type"
	AttrTimeType           = "time_type"
	AttrCostCenter         = "cost_center_id"
	AttrCompany            = "company_id"
	AttrSupervisoryOrg     = "supervisory_org_id"
	AttrGrade              = "compensation_grade"
	AttrGradeProfile       = "compensation_grade_profile"
	AttrBasePay            = "base_pay_amount"
	AttrBasePayCurrency    = "base_pay_currency"
	AttrBasePayFrequency   = "base_pay_frequency"
)

// SourceRecord is one timestamped row from a source feed. Records are
// immutable once staged; the Rescinded flag is the only derived field, set
// when the record's transaction WID appears in the rescind feed.
type SourceRecord struct {
	EntityID       string            `json:"entity_id"`
	EffectiveDate  time.Time         `json:"effective_date"`
	EntryTimestamp time.Time         `json:"entry_timestamp"`
	SequenceNumber int               `json:"sequence_number"`
	TransactionWID string            `json:"transaction_wid"`
	Rescinded      bool              `json:"rescinded,omitempty"`
	Attrs          map[string]string `json:"attrs"`
}

// Rescind is one row of the cancellation feed: a transaction identifier plus
// the source table it nulls out, system-wide.
type Rescind struct {
	TransactionWID  string    `json:"transaction_wid"`
	SourceTable     string    `json:"source_table"`
	RescindedMoment time.Time `json:"rescinded_moment"`
}

// EntityVersion is one row of an entity's bitemporal history, valid over
// [EffectiveFrom, EffectiveTo]. Versions per entity are contiguous and
// non-overlapping, with exactly one open-ended current version.
type EntityVersion struct {
	EntityID      string            `json:"entity_id"`
	EffectiveFrom time.Time         `json:"effective_from"`
	EffectiveTo   time.Time         `json:"effective_to"`
	Attrs         map[string]string `json:"attrs"`
	Fingerprint   string            `json:"fingerprint"`
	IsCurrent     bool              `json:"is_current"`
	RunID         string            `json:"run_id,omitempty"`
}

// Attr returns the named attribute, or "" when absent.
func (v EntityVersion) Attr(key string) string {
	return v.Attrs[key]
}

// ChangeFact is the prior-vs-current diff for one EntityVersion, carrying
// both attribute snapshots and the movement metric vector. The very first
// version of an entity produces no fact.
type ChangeFact struct {
	EntityID           string            `json:"entity_id"`
	EffectiveDate      time.Time         `json:"effective_date"`
	PriorEffectiveDate time.Time         `json:"prior_effective_date"`
	Attrs              map[string]string `json:"attrs"`
	PriorAttrs         map[string]string `json:"prior_attrs"`
	Metrics            map[string]int    `json:"metrics"`
	RunID              string            `json:"run_id,omitempty"`
}

// SnapshotRow is one (snapshot date, entity) membership row of the restated
// headcount table, with reference keys resolved as of the snapshot date.
// Unresolvable keys stay nil and are counted as reference gaps.
type SnapshotRow struct {
	SnapshotDate      time.Time `json:"snapshot_date"`
	EntityID          string    `json:"entity_id"`
	CompanyKey        *int64    `json:"company_key"`
	CostCenterKey     *int64    `json:"cost_center_key"`
	LocationKey       *int64    `json:"location_key"`
	JobProfileKey     *int64    `json:"job_profile_key"`
	SupervisoryOrgKey *int64    `json:"supervisory_org_key"`
	Status            string    `json:"status"`
	Headcount         int       `json:"headcount"`
	RunID             string    `json:"run_id,omitempty"`
}
