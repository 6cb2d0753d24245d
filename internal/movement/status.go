package movement

import (
	"strings"
	"time"

	"github.com/warlab/hr-datamart/internal/model"
)

// Status is the categorized worker status used for eligibility gating and
// snapshot membership.
type Status string

const (
	StatusActive     Status = "Active"
	StatusOnLeave    Status = "On Leave"
	StatusTerminated Status = "Terminated"
)

// Termination reason code prefixes.
const (
	ReasonPrefixVoluntary   = "VOL-"
	ReasonPrefixInvoluntary = "INV-"
	ReasonPrefixRetirement  = "RET-"
	ReasonPrefixDeath       = "DEA-"
	ReasonPrefixContractEnd = "EOC-"
)

// Categorize derives the worker's status from a version's attributes as of a
// date. The precedence is fixed business policy:
//
//  1. deceased, 2. retired, 3. on unpaid leave past the pay-through date
//  (treated as terminated), 4. terminated, 5. on leave, 6. active.
//
// The RET- and EOC- reason prefixes corroborate the retired and terminated
// flags: the reason code lands a delivery ahead of the flag when the event is
// entered before the flag refresh, and either signal suffices. The asOf date
// only matters for the pay-through rule; everything else reads the version as
// written.
func Categorize(attrs map[string]string, asOf time.Time) Status {
	reason := attrs[model.AttrTermReasonCode]
	switch {
	case strings.HasPrefix(reason, ReasonPrefixDeath):
		return StatusTerminated
	case truthy(attrs[model.AttrRetired]), strings.HasPrefix(reason, ReasonPrefixRetirement):
		return StatusTerminated
	}

	onLeave := attrs[model.AttrWorkerStatus] == string(StatusOnLeave)
	if onLeave {
		if payThrough, ok := parseDate(attrs[model.AttrPayThroughDate]); ok && asOf.After(payThrough) {
			return StatusTerminated
		}
	}
	if truthy(attrs[model.AttrTerminated]) || strings.HasPrefix(reason, ReasonPrefixContractEnd) {
		return StatusTerminated
	}
	if onLeave {
		return StatusOnLeave
	}
	return StatusActive
}

// ActiveOrLeave reports whether the status counts toward headcount and
// transition metric eligibility.
func ActiveOrLeave(s Status) bool {
	return s == StatusActive || s == StatusOnLeave
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "y", "yes", "true":
		return true
	}
	return false
}

func parseDate(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
