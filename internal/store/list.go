package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tasktrack/internal/domain"
)

type SortKey string

const (
	SortNone     SortKey = ""
	SortDueDate  SortKey = "due_date"
	SortPriority SortKey = "priority"
	SortName     SortKey = "name"
	SortStatus   SortKey = "status"
)

var priorityRank = map[string]int{
	domain.PriorityHigh:   1,
	domain.PriorityMedium: 2,
	domain.PriorityLow:    3,
}

// PriorityRank orders priorities; unknown values sort last.
func PriorityRank(p string) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return 99
}

// ListOptions filters and orders List results. The zero value lists every
// task in insertion order.
type ListOptions struct {
	SortBy      SortKey
	Category    string
	PendingOnly bool
}

// List returns a filtered, optionally sorted copy of the collection.
// Unknown sort keys leave insertion order untouched.
func (s *Store) List(opts ListOptions) ([]domain.Task, error) {
	res := []domain.Task{}
	for _, t := range s.tasks {
		if opts.Category != "" && !strings.EqualFold(t.Category, opts.Category) {
			continue
		}
		if opts.PendingOnly && t.Completed {
			continue
		}
		res = append(res, t)
	}
	switch opts.SortBy {
	case SortDueDate:
		due := make(map[int]time.Time, len(res))
		for _, t := range res {
			d, err := t.Due()
			if err != nil {
				return nil, fmt.Errorf("task %d: %w", t.ID, err)
			}
			due[t.ID] = d
		}
		sort.SliceStable(res, func(i, j int) bool { return due[res[i].ID].Before(due[res[j].ID]) })
	case SortPriority:
		sort.SliceStable(res, func(i, j int) bool { return PriorityRank(res[i].Priority) < PriorityRank(res[j].Priority) })
	case SortName:
		sort.SliceStable(res, func(i, j int) bool { return strings.ToLower(res[i].Name) < strings.ToLower(res[j].Name) })
	case SortStatus:
		sort.SliceStable(res, func(i, j int) bool { return !res[i].Completed && res[j].Completed })
	}
	return res, nil
}
