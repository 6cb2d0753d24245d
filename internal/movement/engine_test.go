package movement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
)

func version(entity, from string, attrs map[string]string) model.EntityVersion {
	base := map[string]string{
		model.AttrWorkerStatus: "Active",
		model.AttrJobProfile:   "JP1",
		model.AttrGrade:        "G05",
	}
	for k, v := range attrs {
		base[k] = v
	}
	return model.EntityVersion{
		EntityID:      entity,
		EffectiveFrom: model.MustDate(from),
		EffectiveTo:   model.OpenEndDate,
		Attrs:         base,
	}
}

func detectPair(t *testing.T, prev, curr model.EntityVersion) (model.ChangeFact, *hrerr.Recorder) {
	t.Helper()
	rec := hrerr.NewRecorder()
	facts := NewEngine(rec).Detect([]model.EntityVersion{prev, curr})
	require.Len(t, facts, 1)
	return facts[0], rec
}

func TestDetectFirstVersionProducesNoFact(t *testing.T) {
	rec := hrerr.NewRecorder()
	facts := NewEngine(rec).Detect([]model.EntityVersion{version("E1", "2024-01-01", nil)})
	assert.Empty(t, facts)
	assert.Empty(t, NewEngine(rec).Detect(nil))
}

func TestDetectGradeRiseWithoutJobChange(t *testing.T) {
	// A grade move alone is progression, not a job change, and therefore
	// not a promotion either.
	fact, rec := detectPair(t,
		version("E1", "2024-01-01", map[string]string{model.AttrGrade: "G05"}),
		version("E1", "2024-03-01", map[string]string{model.AttrGrade: "G07"}),
	)

	assert.Equal(t, 1, fact.Metrics[MetricGradeChange])
	assert.Equal(t, 1, fact.Metrics[MetricGradeIncrease])
	assert.Equal(t, 0, fact.Metrics[MetricGradeDecrease])
	assert.Equal(t, 0, fact.Metrics[MetricJobChange])
	assert.Equal(t, 0, fact.Metrics[MetricPromotion])
	assert.Equal(t, 0, fact.Metrics[MetricLateralMove])
	assert.Zero(t, rec.TotalOrderingViolations())
}

func TestDetectPromotionDemotionLateralPartitionJobChanges(t *testing.T) {
	promo, _ := detectPair(t,
		version("E1", "2024-01-01", map[string]string{model.AttrJobProfile: "JP1", model.AttrGrade: "G05"}),
		version("E1", "2024-03-01", map[string]string{model.AttrJobProfile: "JP2", model.AttrGrade: "G06"}),
	)
	assert.Equal(t, 1, promo.Metrics[MetricPromotion])
	assert.Equal(t, 0, promo.Metrics[MetricDemotion])
	assert.Equal(t, 0, promo.Metrics[MetricLateralMove])

	demo, _ := detectPair(t,
		version("E1", "2024-01-01", map[string]string{model.AttrJobProfile: "JP1", model.AttrGrade: "G06"}),
		version("E1", "2024-03-01", map[string]string{model.AttrJobProfile: "JP2", model.AttrGrade: "G05"}),
	)
	assert.Equal(t, 1, demo.Metrics[MetricDemotion])

	lateral, _ := detectPair(t,
		version("E1", "2024-01-01", map[string]string{model.AttrJobProfile: "JP1", model.AttrGrade: "G05"}),
		version("E1", "2024-03-01", map[string]string{model.AttrJobProfile: "JP2", model.AttrGrade: "G05"}),
	)
	assert.Equal(t, 1, lateral.Metrics[MetricLateralMove])

	for _, fact := range []model.ChangeFact{promo, demo, lateral} {
		sum := fact.Metrics[MetricPromotion] + fact.Metrics[MetricDemotion] + fact.Metrics[MetricLateralMove]
		assert.Equal(t, fact.Metrics[MetricJobChange], sum)
	}
}

func TestDetectBusinessProcessPromotionIndependentOfGrade(t *testing.T) {
	fact, _ := detectPair(t,
		version("E1", "2024-01-01", nil),
		version("E1", "2024-03-01", map[string]string{
			model.AttrActionCode:       "CHG_JOB",
			model.AttrActionReasonCode: ReasonChangePromo,
		}),
	)
	assert.Equal(t, 1, fact.Metrics[MetricPromotionBP])
	assert.Equal(t, 0, fact.Metrics[MetricPromotion])
}

func TestDetectUnknownGradeRecordsViolationScoresZero(t *testing.T) {
	fact, rec := detectPair(t,
		version("E1", "2024-01-01", map[string]string{model.AttrGrade: "G05"}),
		version("E1", "2024-03-01", map[string]string{model.AttrGrade: "GRADE_7"}),
	)

	assert.Equal(t, 0, fact.Metrics[MetricGradeChange])
	assert.Equal(t, 0, fact.Metrics[MetricGradeIncrease])
	assert.Equal(t, map[string]int{model.AttrGrade: 1}, rec.OrderingViolations())
}

func TestDetectBasePayDirections(t *testing.T) {
	raise, rec := detectPair(t,
		version("E1", "2024-01-01", map[string]string{model.AttrBasePay: "62000"}),
		version("E1", "2024-03-01", map[string]string{model.AttrBasePay: "68000.50"}),
	)
	assert.Equal(t, 1, raise.Metrics[MetricBasePayChange])
	assert.Equal(t, 1, raise.Metrics[MetricBasePayIncrease])
	assert.Equal(t, 0, raise.Metrics[MetricBasePayDecrease])
	assert.Zero(t, rec.TotalOrderingViolations())

	garbage, rec := detectPair(t,
		version("E1", "2024-01-01", map[string]string{model.AttrBasePay: "62000"}),
		version("E1", "2024-03-01", map[string]string{model.AttrBasePay: "sixty-eight"}),
	)
	assert.Equal(t, 0, garbage.Metrics[MetricBasePayChange])
	assert.Equal(t, 1, rec.TotalOrderingViolations())
}

func TestDetectTerminationMetrics(t *testing.T) {
	fact, _ := detectPair(t,
		version("E1", "2024-01-01", nil),
		version("E1", "2024-03-01", map[string]string{
			model.AttrWorkerStatus:    "Terminated",
			model.AttrTerminated:      "1",
			model.AttrTermReasonCode:  "VOL-BETTER_OPP",
			model.AttrRegrettableTerm: "Y",
		}),
	)

	assert.Equal(t, 1, fact.Metrics[MetricTermination])
	assert.Equal(t, 1, fact.Metrics[MetricVoluntaryTerm])
	assert.Equal(t, 0, fact.Metrics[MetricInvoluntaryTerm])
	assert.Equal(t, 1, fact.Metrics[MetricRegrettableTerm])
	// The termination closed the gate on transition metrics.
	assert.Equal(t, 0, fact.Metrics[MetricJobChange])
	assert.Equal(t, 0, fact.Metrics[MetricGradeChange])
}

func TestDetectInvoluntaryTermination(t *testing.T) {
	fact, _ := detectPair(t,
		version("E1", "2024-01-01", nil),
		version("E1", "2024-03-01", map[string]string{
			model.AttrWorkerStatus:   "Terminated",
			model.AttrTerminated:     "1",
			model.AttrTermReasonCode: "INV-RESTRUCTURE",
		}),
	)
	assert.Equal(t, 1, fact.Metrics[MetricInvoluntaryTerm])
	assert.Equal(t, 0, fact.Metrics[MetricVoluntaryTerm])
	assert.Equal(t, 0, fact.Metrics[MetricRegrettableTerm])
}

func TestDetectTerminationNotDoubleCounted(t *testing.T) {
	terminated := version("E1", "2024-03-01", map[string]string{
		model.AttrWorkerStatus:   "Terminated",
		model.AttrTerminated:     "1",
		model.AttrTermReasonCode: "VOL-RELOCATION",
	})
	later := version("E1", "2024-04-01", map[string]string{
		model.AttrWorkerStatus:   "Terminated",
		model.AttrTerminated:     "1",
		model.AttrTermReasonCode: "VOL-RELOCATION",
		model.AttrCostCenter:     "CC2",
	})

	fact, _ := detectPair(t, terminated, later)
	assert.Equal(t, 0, fact.Metrics[MetricTermination])
	assert.Equal(t, 0, fact.Metrics[MetricVoluntaryTerm])
}

func TestDetectRehireBypassesGate(t *testing.T) {
	terminated := version("E1", "2024-01-01", map[string]string{
		model.AttrWorkerStatus:   "Terminated",
		model.AttrTerminated:     "1",
		model.AttrTermReasonCode: "VOL-RETURN_SCHOOL",
	})
	rehired := version("E1", "2024-06-01", map[string]string{
		model.AttrActionCode:       ActionHire,
		model.AttrActionReasonCode: ReasonHireRehire,
	})

	fact, _ := detectPair(t, terminated, rehired)
	assert.Equal(t, 1, fact.Metrics[MetricRehire])
	assert.Equal(t, 0, fact.Metrics[MetricExternalHire])
	// Attribute churn across the employment gap is not movement.
	assert.Equal(t, 0, fact.Metrics[MetricJobChange])
}

func TestDetectLeaveMetrics(t *testing.T) {
	fact, _ := detectPair(t,
		version("E1", "2024-01-01", nil),
		version("E1", "2024-03-01", map[string]string{
			model.AttrWorkerStatus: "On Leave",
			model.AttrActionCode:   ActionLeaveOfAbs,
		}),
	)
	assert.Equal(t, 1, fact.Metrics[MetricLeaveOfAbsence])
	assert.Equal(t, 0, fact.Metrics[MetricReturnFromLeave])
}

func TestDetectStructuralZeroMetricsPresent(t *testing.T) {
	fact, _ := detectPair(t,
		version("E1", "2024-01-01", nil),
		version("E1", "2024-03-01", map[string]string{model.AttrCostCenter: "CC2"}),
	)

	for _, name := range MetricNames() {
		_, ok := fact.Metrics[name]
		assert.True(t, ok, "metric %s missing from fact", name)
	}
	assert.Equal(t, 0, fact.Metrics[MetricInternalHire])
	assert.Equal(t, 0, fact.Metrics[MetricAcquisitionHire])
	assert.Equal(t, 0, fact.Metrics[MetricContingentConvert])
	assert.Equal(t, 1, fact.Metrics[MetricCostCenterChange])
}

func TestHireMetricColumnsComplete(t *testing.T) {
	names := map[string]bool{}
	for _, n := range MetricNames() {
		names[n] = true
	}
	for _, n := range []string{MetricExternalHire, MetricInternalHire, MetricRehire} {
		assert.True(t, names[n], "indicator table missing metric %s", n)
	}
}

func TestDetectFactCarriesBothSnapshots(t *testing.T) {
	prev := version("E1", "2024-01-01", map[string]string{model.AttrCostCenter: "CC1"})
	curr := version("E1", "2024-03-01", map[string]string{model.AttrCostCenter: "CC2"})

	fact, _ := detectPair(t, prev, curr)
	assert.Equal(t, "E1", fact.EntityID)
	assert.Equal(t, model.MustDate("2024-03-01"), fact.EffectiveDate)
	assert.Equal(t, model.MustDate("2024-01-01"), fact.PriorEffectiveDate)
	assert.Equal(t, "CC1", fact.PriorAttrs[model.AttrCostCenter])
	assert.Equal(t, "CC2", fact.Attrs[model.AttrCostCenter])
}
