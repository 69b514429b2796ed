package model

// Label is the classification outcome for a KOI.
type Label string

// The three classification outcomes.
const (
	LabelConfirmed     Label = "Confirmed"
	LabelCandidate     Label = "Candidate"
	LabelFalsePositive Label = "False Positive"
)

// Labels returns every label in display order.
func Labels() []Label {
	return []Label{LabelConfirmed, LabelCandidate, LabelFalsePositive}
}

// LabelFromClass maps a classifier class index to a Label:
// 1 is Confirmed, 0 is False Positive, anything else is Candidate.
func LabelFromClass(class int) Label {
	switch class {
	case 1:
		return LabelConfirmed
	case 0:
		return LabelFalsePositive
	default:
		return LabelCandidate
	}
}

// Valid reports whether l is one of the three known labels.
func (l Label) Valid() bool {
	switch l {
	case LabelConfirmed, LabelCandidate, LabelFalsePositive:
		return true
	}
	return false
}

// Severity is the UI tone used when presenting a single label.
func (l Label) Severity() string {
	switch l {
	case LabelConfirmed:
		return "success"
	case LabelCandidate:
		return "info"
	default:
		return "error"
	}
}

func (l Label) String() string { return string(l) }

// Result is the outcome of classifying a batch of rows.
// Cells holds the canonical-column cell text of each row as uploaded.
type Result struct {
	Rows   []Row
	Cells  [][]string
	Labels []Label
}

// Len returns the number of classified rows.
func (r Result) Len() int { return len(r.Labels) }

// Counts returns the number of rows per label. Every label is present,
// including those with zero rows.
func (r Result) Counts() map[Label]int {
	counts := make(map[Label]int, 3)
	for _, l := range Labels() {
		counts[l] = 0
	}
	for _, l := range r.Labels {
		counts[l]++
	}
	return counts
}
