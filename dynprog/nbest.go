package dynprog

// backPointer identifies a predecessor DP cell.
type backPointer struct {
	state int
	pos   int
	rank  int
}

// nbestList keeps the k highest scores pushed so far, best first. Ties keep
// the earlier entry in front.
type nbestList struct {
	vals []float64
	refs []backPointer
	k    int
}

func newNBestList(k int) *nbestList {
	return &nbestList{
		vals: make([]float64, 0, k),
		refs: make([]backPointer, 0, k),
		k:    k,
	}
}

func (l *nbestList) reset() {
	l.vals = l.vals[:0]
	l.refs = l.refs[:0]
}

func (l *nbestList) len() int { return len(l.vals) }

func (l *nbestList) push(v float64, ref backPointer) {
	n := len(l.vals)
	if n == l.k && !(v > l.vals[n-1]) {
		return
	}
	at := n
	for at > 0 && v > l.vals[at-1] {
		at--
	}
	if n < l.k {
		l.vals = append(l.vals, 0)
		l.refs = append(l.refs, backPointer{})
	} else {
		n--
	}
	copy(l.vals[at+1:n+1], l.vals[at:n])
	copy(l.refs[at+1:n+1], l.refs[at:n])
	l.vals[at] = v
	l.refs[at] = ref
}
