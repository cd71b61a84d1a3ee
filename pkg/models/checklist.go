package models

// ChecklistStatus is the verification state of a checklist item.
type ChecklistStatus string

const (
	ChecklistPending           ChecklistStatus = "pending"
	ChecklistInProgress        ChecklistStatus = "in_progress"
	ChecklistVerified          ChecklistStatus = "verified"
	ChecklistPartiallyVerified ChecklistStatus = "partially_verified"
	ChecklistFailed            ChecklistStatus = "failed"
	ChecklistNotApplicable     ChecklistStatus = "not_applicable"
)

// ChecklistItem is one trackable requirement derived from the plan.
type ChecklistItem struct {
	ID          string          `json:"id"`
	Requirement string          `json:"requirement"`
	Criteria    string          `json:"criteria"`
	Priority    string          `json:"priority,omitempty"` // high, medium, low
	Category    string          `json:"category,omitempty"`
	Status      ChecklistStatus `json:"status"`
	Evidence    []string        `json:"evidence,omitempty"`
	SourceIDs   []string        `json:"source_ids,omitempty"`
}

// Checklist is the set of verifiable requirements for a session, with
// aggregate progress recomputed from item statuses.
type Checklist struct {
	SessionID       string          `json:"session_id"`
	Items           []ChecklistItem `json:"items"`
	OverallProgress float64         `json:"overall_progress"` // 0-100
}

// statusWeight returns the progress contribution of a status:
// verified = 1.0, partially_verified = 0.5, everything else 0.
func statusWeight(s ChecklistStatus) float64 {
	switch s {
	case ChecklistVerified:
		return 1.0
	case ChecklistPartiallyVerified:
		return 0.5
	default:
		return 0
	}
}

// RecomputeProgress recalculates overall progress from item statuses.
// Items marked not_applicable are excluded from the denominator.
func (c *Checklist) RecomputeProgress() float64 {
	var sum float64
	applicable := 0
	for _, item := range c.Items {
		if item.Status == ChecklistNotApplicable {
			continue
		}
		applicable++
		sum += statusWeight(item.Status)
	}
	if applicable == 0 {
		c.OverallProgress = 0
		return 0
	}
	c.OverallProgress = sum / float64(applicable) * 100
	return c.OverallProgress
}

// Counts returns the number of items in each status.
func (c *Checklist) Counts() map[ChecklistStatus]int {
	counts := make(map[ChecklistStatus]int)
	for _, item := range c.Items {
		counts[item.Status]++
	}
	return counts
}

// PendingItems returns the items still awaiting verification.
func (c *Checklist) PendingItems() []*ChecklistItem {
	var pending []*ChecklistItem
	for i := range c.Items {
		if c.Items[i].Status == ChecklistPending || c.Items[i].Status == ChecklistInProgress {
			pending = append(pending, &c.Items[i])
		}
	}
	return pending
}
