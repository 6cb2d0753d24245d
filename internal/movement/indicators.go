package movement

import (
	"strconv"
	"strings"

	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
)

// Metric column names of the movement fact.
const (
	MetricGradeChange        = "grade_change_count"
	MetricGradeIncrease      = "grade_increase_count"
	MetricGradeDecrease      = "grade_decrease_count"
	MetricJobChange          = "job_change_count"
	MetricPromotion          = "promotion_count"
	MetricDemotion           = "demotion_count"
	MetricLateralMove        = "lateral_move_count"
	MetricPromotionBP        = "promotion_count_business_process"
	MetricLevelChange        = "management_level_change_count"
	MetricLevelIncrease      = "management_level_increase_count"
	MetricLevelDecrease      = "management_level_decrease_count"
	MetricLocationChange     = "location_change_count"
	MetricCompanyChange      = "company_change_count"
	MetricCostCenterChange   = "cost_center_change_count"
	MetricSupervisoryChange  = "supervisory_organization_change_count"
	MetricManagerChange      = "manager_change_count"
	MetricBasePayChange      = "base_pay_change_count"
	MetricBasePayIncrease    = "base_pay_increase_count"
	MetricBasePayDecrease    = "base_pay_decrease_count"
	MetricWorkModelChange    = "work_model_change_count"
	MetricExternalHire       = "external_hire_count"
	MetricInternalHire       = "internal_hire_count"
	MetricRehire             = "rehire_count"
	MetricAcquisitionHire    = "acquisition_hire_count"
	MetricContingentConvert  = "contingent_conversion_count"
	MetricTermination        = "termination_count"
	MetricVoluntaryTerm      = "voluntary_termination_count"
	MetricInvoluntaryTerm    = "involuntary_termination_count"
	MetricRegrettableTerm    = "regrettable_termination_count"
	MetricLeaveOfAbsence     = "leave_of_absence_count"
	MetricReturnFromLeave    = "return_from_leave_count"
)

// Action and reason codes read by the indicators.
const (
	ActionHire          = "HIR"
	ActionLeaveOfAbs    = "LOA"
	ActionReturnLeave   = "RFL"
	ReasonHireNew       = "HIR_NEW"
	ReasonHireRehire    = "HIR_REH"
	ReasonChangePromo   = "CHG_PROMO"
)

// Eval is the comparison context for one (prior, current) version pair.
// Ordered comparisons are memoized because several indicators share them.
type Eval struct {
	Prev, Curr model.EntityVersion
	PrevStatus Status
	CurrStatus Status
	rec        *hrerr.Recorder

	gradeDir, levelDir, payDir int
	gradeOK, levelOK, payOK    bool
	cmpDone                    bool
}

func (e *Eval) changed(key string) bool {
	return e.Prev.Attr(key) != e.Curr.Attr(key)
}

func (e *Eval) compare() {
	if e.cmpDone {
		return
	}
	e.cmpDone = true
	e.gradeDir, e.gradeOK = CompareGrades(e.Prev.Attr(model.AttrGrade), e.Curr.Attr(model.AttrGrade))
	if !e.gradeOK && e.changed(model.AttrGrade) && e.rec != nil {
		e.rec.OrderingViolation(model.AttrGrade)
	}
	e.levelDir, e.levelOK = CompareLevels(e.Prev.Attr(model.AttrManagementLevel), e.Curr.Attr(model.AttrManagementLevel))
	if !e.levelOK && e.changed(model.AttrManagementLevel) && e.rec != nil {
		e.rec.OrderingViolation(model.AttrManagementLevel)
	}
	e.payDir, e.payOK = e.comparePay()
}

func (e *Eval) comparePay() (int, bool) {
	prev, curr := e.Prev.Attr(model.AttrBasePay), e.Curr.Attr(model.AttrBasePay)
	if prev == "" || curr == "" {
		return 0, false
	}
	a, errA := strconv.ParseFloat(prev, 64)
	b, errB := strconv.ParseFloat(curr, 64)
	if errA != nil || errB != nil {
		if e.rec != nil {
			e.rec.OrderingViolation(model.AttrBasePay)
		}
		return 0, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	}
	return 0, true
}

func (e *Eval) terminated() bool {
	return e.CurrStatus == StatusTerminated && e.PrevStatus != StatusTerminated
}

func (e *Eval) currReason(prefix string) bool {
	return strings.HasPrefix(e.Curr.Attr(model.AttrTermReasonCode), prefix)
}

// Indicator scores one movement metric for a version pair. Gated indicators
// are only evaluated when both statuses are in active-or-leave; a transition
// into or out of termination never counts as organizational movement.
type Indicator struct {
	Name  string
	Gated bool
	Score func(e *Eval) int
}

func boolScore(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Indicators is the declarative metric table, in fact column order. Adding a
// metric means adding a row; the engine and store key off this table alone.
var Indicators = []Indicator{
	{MetricGradeChange, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.gradeOK && e.gradeDir != 0)
	}},
	{MetricGradeIncrease, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.gradeOK && e.gradeDir < 0)
	}},
	{MetricGradeDecrease, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.gradeOK && e.gradeDir > 0)
	}},
	{MetricJobChange, true, func(e *Eval) int {
		return boolScore(e.changed(model.AttrJobProfile))
	}},
	// Promotion, demotion and lateral move partition job changes by grade
	// direction, so the three always sum to the comparable job changes.
	{MetricPromotion, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.changed(model.AttrJobProfile) && e.gradeOK && e.gradeDir < 0)
	}},
	{MetricDemotion, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.changed(model.AttrJobProfile) && e.gradeOK && e.gradeDir > 0)
	}},
	{MetricLateralMove, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.changed(model.AttrJobProfile) && e.gradeOK && e.gradeDir == 0)
	}},
	// Promotion as declared by the business process, independent of what the
	// grade ladder says. The two promotion counts legitimately disagree.
	{MetricPromotionBP, true, func(e *Eval) int {
		return boolScore(e.Curr.Attr(model.AttrActionReasonCode) == ReasonChangePromo)
	}},
	{MetricLevelChange, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.levelOK && e.levelDir != 0)
	}},
	{MetricLevelIncrease, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.levelOK && e.levelDir < 0)
	}},
	{MetricLevelDecrease, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.levelOK && e.levelDir > 0)
	}},
	{MetricLocationChange, true, func(e *Eval) int {
		return boolScore(e.changed(model.AttrLocation))
	}},
	{MetricCompanyChange, true, func(e *Eval) int {
		return boolScore(e.changed(model.AttrCompany))
	}},
	{MetricCostCenterChange, true, func(e *Eval) int {
		return boolScore(e.changed(model.AttrCostCenter))
	}},
	{MetricSupervisoryChange, true, func(e *Eval) int {
		return boolScore(e.changed(model.AttrSupervisoryOrg))
	}},
	{MetricManagerChange, true, func(e *Eval) int {
		return boolScore(e.changed(model.AttrManager))
	}},
	{MetricBasePayChange, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.payOK && e.payDir != 0)
	}},
	{MetricBasePayIncrease, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.payOK && e.payDir < 0)
	}},
	{MetricBasePayDecrease, true, func(e *Eval) int {
		e.compare()
		return boolScore(e.payOK && e.payDir > 0)
	}},
	{MetricWorkModelChange, true, func(e *Eval) int {
		return boolScore(e.changed(model.AttrWorkModel))
	}},
	{MetricExternalHire, false, func(e *Eval) int {
		return boolScore(e.Curr.Attr(model.AttrActionCode) == ActionHire &&
			e.Curr.Attr(model.AttrActionReasonCode) == ReasonHireNew)
	}},
	// The hire reason vocabulary only distinguishes new hires and rehires;
	// internal hires never reach the feed as hire events. The column stays in
	// the fact so downstream reports keep a stable shape.
	{MetricInternalHire, false, func(e *Eval) int { return 0 }},
	{MetricRehire, false, func(e *Eval) int {
		return boolScore(e.Curr.Attr(model.AttrActionCode) == ActionHire &&
			e.Curr.Attr(model.AttrActionReasonCode) == ReasonHireRehire)
	}},
	// No acquisition or conversion events flow through the feeds yet; the
	// columns stay in the fact so downstream reports keep a stable shape.
	{MetricAcquisitionHire, false, func(e *Eval) int { return 0 }},
	{MetricContingentConvert, false, func(e *Eval) int { return 0 }},
	{MetricTermination, false, func(e *Eval) int {
		return boolScore(e.terminated())
	}},
	{MetricVoluntaryTerm, false, func(e *Eval) int {
		return boolScore(e.terminated() && e.currReason(ReasonPrefixVoluntary))
	}},
	{MetricInvoluntaryTerm, false, func(e *Eval) int {
		return boolScore(e.terminated() && e.currReason(ReasonPrefixInvoluntary))
	}},
	{MetricRegrettableTerm, false, func(e *Eval) int {
		return boolScore(e.terminated() && truthy(e.Curr.Attr(model.AttrRegrettableTerm)))
	}},
	{MetricLeaveOfAbsence, true, func(e *Eval) int {
		return boolScore(e.Curr.Attr(model.AttrActionCode) == ActionLeaveOfAbs)
	}},
	{MetricReturnFromLeave, true, func(e *Eval) int {
		return boolScore(e.Curr.Attr(model.AttrActionCode) == ActionReturnLeave)
	}},
}

// MetricNames returns the metric columns in table order.
func MetricNames() []string {
	names := make([]string, len(Indicators))
	for i, ind := range Indicators {
		names[i] = ind.Name
	}
	return names
}
