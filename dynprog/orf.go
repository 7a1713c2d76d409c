package dynprog

// NoFrame marks a state without an open-reading-frame phase.
const NoFrame = -1

// orfTarget returns the required segment length modulo 3 for an edge from a
// state leaving at phase from into a state entering at phase to, or -1.
func orfTarget(from, to int) int {
	if from == NoFrame {
		return -1
	}
	target := to - from
	if target < 0 {
		target += 3
	}
	return target
}

// orfScanner checks segments for in-frame stop codons, scanning backwards
// from the segment end. lastPos caches how far a scan for the current
// segment end has already been cleared.
type orfScanner struct {
	stop []bool
}

// extend reports whether the open reading frame ending at genome coordinate
// to can be extended back to start without hitting a stop codon. lastPos
// must be initialised to to for every new segment end.
func (o orfScanner) extend(orfTo, start int, lastPos *int, to int) bool {
	start = max(start, 0)
	to = max(to, 0)

	pos := *lastPos
	if pos == to {
		pos = to - orfTo - 3
	}
	if pos < 0 {
		return true
	}
	for ; pos >= start; pos -= 3 {
		if o.stop[pos] {
			return false
		}
	}
	*lastPos = min(pos+3, to-orfTo-3)
	return true
}
