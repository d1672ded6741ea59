package terrain

import "voxterrain/internal/bufpool"

type counters struct {
	ticks      uint64
	loads      int
	slices     int
	dispatched int
	completed  int
	discarded  int
	failed     int
	uploaded   int
	exhausted  int
	collapses  int
}

// Stats is a snapshot of terrain activity since New and of the current
// region distribution across all levels.
type Stats struct {
	Ticks      uint64
	Loads      int // full level loads
	Slices     int // face slices streamed from the source
	Dispatched int
	Completed  int
	Discarded  int // stale results dropped after eviction or a dirty write
	Failed     int
	Uploaded   int
	Exhausted  int // uploads refused by the buffer pool
	Collapses  int
	Rotations  int

	HybridRequests int
	HybridUploads  int

	InFlight int
	Visible  int
	Regions  map[Status]int
	Buffers  bufpool.Stats
}

// Stats returns current counters.
func (t *Terrain) Stats() Stats {
	s := Stats{
		Ticks:      t.stats.ticks,
		Loads:      t.stats.loads,
		Slices:     t.stats.slices,
		Dispatched: t.stats.dispatched,
		Completed:  t.stats.completed,
		Discarded:  t.stats.discarded,
		Failed:     t.stats.failed,
		Uploaded:   t.stats.uploaded,
		Exhausted:  t.stats.exhausted,
		Collapses:  t.stats.collapses,
		InFlight:   len(t.inflight),
		Visible:    len(t.visible),
		Regions:    make(map[Status]int, statusCount),
		Buffers:    t.pool.Stats(),
	}
	for _, l := range t.levels {
		s.Rotations += l.rotations
		for st := StatusPool; st < statusCount; st++ {
			s.Regions[st] += l.Count(st)
		}
	}
	if t.hybrid != nil {
		s.HybridRequests = t.hybrid.requests
		s.HybridUploads = t.hybrid.uploads
	}
	return s
}
