package actionqueue

// actionHeap implements container/heap.Interface, ordering by
// (priority desc, scheduledFor asc) per spec.md §4.6.
type actionHeap []*QueuedAction

func (h actionHeap) Len() int { return len(h) }

func (h actionHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].ScheduledFor.Before(h[j].ScheduledFor)
}

func (h actionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *actionHeap) Push(x interface{}) {
	*h = append(*h, x.(*QueuedAction))
}

func (h *actionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
