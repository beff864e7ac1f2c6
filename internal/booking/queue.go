package booking

// entry is one queued submission. seq is assigned at submission time and
// strictly increases, giving FIFO order among equal priorities.
type entry struct {
	priority int
	seq      uint64
	task     Task
	future   *Future
}

// entryQueue is a min-heap ordered by (priority, seq).
type entryQueue []*entry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q entryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *entryQueue) Push(x any) { *q = append(*q, x.(*entry)) }

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}
