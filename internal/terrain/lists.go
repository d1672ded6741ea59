package terrain

// statusLists keeps one ordered, doubly linked index list per status. Links
// live in arrays owned by the Level, so regions carry no list pointers and
// moving a region between lists is O(1). Queued is consumed FIFO.
type statusLists struct {
	head, tail [statusCount]int32
	size       [statusCount]int
	prev, next []int32
	in         []Status
}

func newStatusLists(n int) *statusLists {
	l := &statusLists{
		prev: make([]int32, n),
		next: make([]int32, n),
		in:   make([]Status, n),
	}
	for s := range l.head {
		l.head[s], l.tail[s] = -1, -1
	}
	for i := range n {
		l.prev[i], l.next[i] = -1, -1
		l.in[i] = statusCount
	}
	return l
}

// push appends local index i to s. i must not be in any list.
func (l *statusLists) push(s Status, i int32) {
	l.in[i] = s
	l.prev[i] = l.tail[s]
	l.next[i] = -1
	if l.tail[s] >= 0 {
		l.next[l.tail[s]] = i
	} else {
		l.head[s] = i
	}
	l.tail[s] = i
	l.size[s]++
}

func (l *statusLists) remove(i int32) {
	s := l.in[i]
	if s == statusCount {
		return
	}
	if l.prev[i] >= 0 {
		l.next[l.prev[i]] = l.next[i]
	} else {
		l.head[s] = l.next[i]
	}
	if l.next[i] >= 0 {
		l.prev[l.next[i]] = l.prev[i]
	} else {
		l.tail[s] = l.prev[i]
	}
	l.prev[i], l.next[i] = -1, -1
	l.in[i] = statusCount
	l.size[s]--
}

// move relinks i at the tail of s.
func (l *statusLists) move(i int32, s Status) {
	l.remove(i)
	l.push(s, i)
}

func (l *statusLists) first(s Status) int32 { return l.head[s] }
func (l *statusLists) after(i int32) int32  { return l.next[i] }
func (l *statusLists) len(s Status) int     { return l.size[s] }

// each visits s in order; fn may move the visited index.
func (l *statusLists) each(s Status, fn func(i int32)) {
	for i := l.head[s]; i >= 0; {
		n := l.next[i]
		fn(i)
		i = n
	}
}

// contains reports the list holding i, for invariant checks.
func (l *statusLists) contains(s Status, i int32) bool {
	for j := l.head[s]; j >= 0; j = l.next[j] {
		if j == i {
			return true
		}
	}
	return false
}
