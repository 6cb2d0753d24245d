// Package refdata serves read-only reference dimensions: externally
// deduplicated, validity-windowed lookup tables resolved as of a date.
package refdata

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/warlab/hr-datamart/internal/hrerr"
	"github.com/warlab/hr-datamart/internal/model"
)

// Dimension names.
const (
	DimLocation       = "location"
	DimCompany        = "company"
	DimCostCenter     = "cost_center"
	DimJobProfile     = "job_profile"
	DimGradeProfile   = "grade_profile"
	DimSupervisoryOrg = "supervisory_org"
)

// DimensionSpec maps a staged dimension file onto the catalog.
type DimensionSpec struct {
	Name         string
	SourceTable  string
	KeyCol       string // surrogate key column
	NaturalCol   string // natural key column
	ValidFromCol string
	ValidToCol   string
}

// Dimensions returns the production dimension catalog specs.
func Dimensions() []DimensionSpec {
	return []DimensionSpec{
		{Name: DimGradeProfile, SourceTable: "ref_grade_profile", KeyCol: "Grade_Profile_Key", NaturalCol: "Grade_Profile_ID", ValidFromCol: "Valid_From", ValidToCol: "Valid_To"},
		{Name: DimJobProfile, SourceTable: "ref_job_profile", KeyCol: "Job_Profile_Key", NaturalCol: "Job_Profile_ID", ValidFromCol: "Valid_From", ValidToCol: "Valid_To"},
		{Name: DimLocation, SourceTable: "ref_location", KeyCol: "Location_Key", NaturalCol: "Business_Site_ID", ValidFromCol: "Valid_From", ValidToCol: "Valid_To"},
		{Name: DimCompany, SourceTable: "ref_company", KeyCol: "Company_Key", NaturalCol: "Company_ID", ValidFromCol: "Valid_From", ValidToCol: "Valid_To"},
		{Name: DimCostCenter, SourceTable: "ref_cost_center", KeyCol: "Cost_Center_Key", NaturalCol: "Cost_Center_ID", ValidFromCol: "Valid_From", ValidToCol: "Valid_To"},
		{Name: DimSupervisoryOrg, SourceTable: "ref_supervisory_org", KeyCol: "Supervisory_Org_Key", NaturalCol: "Supervisory_Org_ID", ValidFromCol: "Valid_From", ValidToCol: "Valid_To"},
	}
}

// Entry is one validity window of a dimension member.
type Entry struct {
	SurrogateKey int64
	NaturalKey   string
	ValidFrom    time.Time
	ValidTo      time.Time
}

// Catalog indexes dimension entries for as-of resolution. Build it once per
// run, then resolve from any number of goroutines.
type Catalog struct {
	dims map[string]map[string][]Entry
	log  *zap.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		dims: make(map[string]map[string][]Entry),
		log:  zap.L().With(zap.String("component", "refdata")),
	}
}

// Add loads entries into a dimension. Each natural key's windows are kept
// sorted by ValidFrom for floor searches.
func (c *Catalog) Add(dimension string, entries []Entry) {
	byKey, ok := c.dims[dimension]
	if !ok {
		byKey = make(map[string][]Entry)
		c.dims[dimension] = byKey
	}
	for _, e := range entries {
		byKey[e.NaturalKey] = append(byKey[e.NaturalKey], e)
	}
	for k := range byKey {
		w := byKey[k]
		sort.Slice(w, func(a, b int) bool { return w[a].ValidFrom.Before(w[b].ValidFrom) })
	}
}

// Resolve returns the surrogate key whose validity window contains asOf, or
// nil when nothing matches. Misses are recorded as reference gaps; the caller
// keeps a null key and the run continues.
func (c *Catalog) Resolve(dimension, naturalKey string, asOf time.Time, rec *hrerr.Recorder) *int64 {
	if naturalKey == "" {
		return nil
	}
	windows := c.dims[dimension][naturalKey]
	i := sort.Search(len(windows), func(i int) bool { return windows[i].ValidFrom.After(asOf) })
	if i > 0 {
		e := windows[i-1]
		if !asOf.After(e.ValidTo) {
			key := e.SurrogateKey
			return &key
		}
	}
	if rec != nil {
		rec.ReferenceGap(dimension)
	}
	return nil
}

// ValidateAnchors returns the dimensions holding any member whose earliest
// window starts after the epoch sentinel. Such members resolve for recent
// dates but silently gap out of historical snapshots, so the pipeline logs
// them up front.
func (c *Catalog) ValidateAnchors() []string {
	var bad []string
	for dim, byKey := range c.dims {
		for key, windows := range byKey {
			if len(windows) > 0 && windows[0].ValidFrom.After(model.DimensionEpoch) {
				c.log.Warn("dimension member not anchored at epoch",
					zap.String("dimension", dim),
					zap.String("natural_key", key),
					zap.Time("earliest_valid_from", windows[0].ValidFrom))
				bad = append(bad, dim)
				break
			}
		}
	}
	sort.Strings(bad)
	return bad
}

// Size returns the number of loaded entries per dimension.
func (c *Catalog) Size() map[string]int {
	out := make(map[string]int, len(c.dims))
	for dim, byKey := range c.dims {
		n := 0
		for _, w := range byKey {
			n += len(w)
		}
		out[dim] = n
	}
	return out
}
