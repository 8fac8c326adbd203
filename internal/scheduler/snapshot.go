package scheduler

import (
	"sort"
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	tz := s.cfg.Timezone
	defs := make([]scheduleDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	if tz == "" {
		tz = loc.String()
	}

	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{ID: d.id, Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}

	s.tmu.Lock()
	once := make([]OnceInfo, 0, len(s.onceAt))
	for name, at := range s.onceAt {
		once = append(once, OnceInfo{Name: name, At: at})
	}
	s.tmu.Unlock()
	sort.Slice(once, func(i, j int) bool { return once[i].At.Before(once[j].At) })

	return Snapshot{
		Timezone:  tz,
		Schedules: items,
		Once:      once,
	}
}
