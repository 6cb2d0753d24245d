// Package movement derives per-version change facts: worker status
// categorization, ordered vocabulary comparisons, and the movement
// indicator vector.
package movement

// GradeOrder is the compensation grade ladder, lowest first. Grade
// comparisons are positional lookups against this list, never string
// comparisons, so a malformed code is detected instead of misordered.
var GradeOrder = []string{
	"G01", "G02", "G03", "G04", "G05",
	"G06", "G07", "G08", "G09", "G10",
	"G11", "G12", "G13", "G14", "G15",
}

// ManagementLevelOrder is the management level hierarchy, lowest first.
var ManagementLevelOrder = []string{
	"MLH_Professional",
	"MLH_Management_Hierarchy",
	"MLH_Management",
	"MLH_Senior_Management",
	"MLH_Senior_Leadership",
	"MLH_Executive",
	"MLH_Senior_Executive",
	"MLH_Group_Head",
	"MLH_CEO",
}

var (
	gradeIndex = indexOf(GradeOrder)
	levelIndex = indexOf(ManagementLevelOrder)
)

func indexOf(order []string) map[string]int {
	m := make(map[string]int, len(order))
	for i, v := range order {
		m[v] = i
	}
	return m
}

// CompareOrdered compares two codes by their position in the vocabulary.
// ok is false when either code is absent from it, including the empty
// string; the caller records an ordering violation and scores zero.
func CompareOrdered(index map[string]int, a, b string) (int, bool) {
	ia, oka := index[a]
	ib, okb := index[b]
	if !oka || !okb {
		return 0, false
	}
	switch {
	case ia < ib:
		return -1, true
	case ia > ib:
		return 1, true
	default:
		return 0, true
	}
}

// CompareGrades orders two compensation grades.
func CompareGrades(a, b string) (int, bool) {
	return CompareOrdered(gradeIndex, a, b)
}

// CompareLevels orders two management levels.
func CompareLevels(a, b string) (int, bool) {
	return CompareOrdered(levelIndex, a, b)
}
