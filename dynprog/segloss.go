package dynprog

import (
	"fmt"
	"math"
)

// lossThreshold is the smallest loss entry that switches on loss-augmented
// decoding.
const lossThreshold = 1e-3

// wobbleMask is the mask weight below which a reference position may
// absorb one segment-id change.
const wobbleMask = 1e-7

// SegmentLoss is the (ids × ids × 2) loss tensor. At(ref, cand, 0) is the
// loss per occurrence of reference segment ref under hypothesis cand,
// At(ref, cand, 1) the loss per unit of length.
type SegmentLoss struct {
	NumIDs int       `json:"num_ids" yaml:"num_ids"`
	Values []float64 `json:"values" yaml:"values"`
}

// NewSegmentLoss returns an all-zero loss tensor for segment ids 0..numIDs-1.
func NewSegmentLoss(numIDs int) *SegmentLoss {
	return &SegmentLoss{NumIDs: numIDs, Values: make([]float64, numIDs*numIDs*2)}
}

// At returns one tensor entry.
func (l *SegmentLoss) At(ref, cand, slot int) float64 {
	return l.Values[(ref*l.NumIDs+cand)*2+slot]
}

// Set assigns one tensor entry.
func (l *SegmentLoss) Set(ref, cand, slot int, v float64) {
	l.Values[(ref*l.NumIDs+cand)*2+slot] = v
}

// Active reports whether any entry is large enough to affect decoding.
func (l *SegmentLoss) Active() bool {
	if l == nil {
		return false
	}
	for _, v := range l.Values {
		if v > lossThreshold {
			return true
		}
	}
	return false
}

func (l *SegmentLoss) validate(numIDs int) error {
	if l.NumIDs != numIDs {
		return configErrorf("segment loss", "tensor covers %d ids, transitions use %d", l.NumIDs, numIDs)
	}
	if len(l.Values) != numIDs*numIDs*2 {
		return configErrorf("segment loss", "tensor has %d values, want %d", len(l.Values), numIDs*numIDs*2)
	}
	return nil
}

// Reference is the reference segmentation: a segment id and a soft mask
// weight per position index.
type Reference struct {
	IDs  []int     `json:"ids" yaml:"ids"`
	Mask []float64 `json:"mask" yaml:"mask"`
}

func (r *Reference) validate(seqLen, maxID int) error {
	if len(r.IDs) != seqLen || len(r.Mask) != seqLen {
		return configErrorf("reference", "ids/mask have %d/%d entries, want %d", len(r.IDs), len(r.Mask), seqLen)
	}
	for t, id := range r.IDs {
		if id < 0 || id > maxID {
			return configErrorf("reference", "segment id %d at %d outside [0,%d]", id, t, maxID)
		}
	}
	return nil
}

// SegmentLossTable answers how much loss a hypothesised segment accrues
// against the reference segmentation. FindTill fills the table for one
// segment end; Extend then queries start positions moving backwards.
type SegmentLossTable struct {
	loss *SegmentLoss
	ref  *Reference
	ids  int

	seqLen      int
	maxLookBack int
	changed     []bool
	num         []float64 // num[t*ids+id]
	length      []int     // length[t*ids+id]
}

// NewSegmentLossTable returns a table for the given loss tensor and
// reference segmentation.
func NewSegmentLossTable(loss *SegmentLoss, ref *Reference) *SegmentLossTable {
	return &SegmentLossTable{loss: loss, ref: ref, ids: loss.NumIDs}
}

// Init sizes the table for seqLen positions and bounds how far FindTill
// walks back in genome coordinates.
func (s *SegmentLossTable) Init(seqLen, maxLookBack int) {
	if s.seqLen != seqLen || s.changed == nil {
		s.changed = make([]bool, seqLen)
		s.num = make([]float64, seqLen*s.ids)
		s.length = make([]int, seqLen*s.ids)
		s.seqLen = seqLen
	}
	s.maxLookBack = maxLookBack
}

// FindTill accumulates the reference segments seen walking back from tEnd.
// A position with mask weight below 1e-7 absorbs a change of segment id
// without counting it, once until the next counted change.
func (s *SegmentLossTable) FindTill(pos []int, tEnd int) error {
	ids := s.ids
	row := func(t int) int { return t * ids }

	clear(s.num[row(tEnd) : row(tEnd)+ids])
	clear(s.length[row(tEnd) : row(tEnd)+ids])
	s.changed[tEnd] = false

	wobbles := 0
	last := -1
	for ts := tEnd - 1; ts >= 0 && pos[tEnd]-pos[ts] <= s.maxLookBack; ts-- {
		cur := s.ref.IDs[ts]
		if cur < 0 || cur >= ids {
			return fmt.Errorf("dynprog: reference segment id %d at %d exceeds max id %d", cur, ts, ids-1)
		}
		mask := s.ref.Mask[ts]
		wobble := math.Abs(mask) < wobbleMask && wobbles == 0

		copy(s.num[row(ts):row(ts)+ids], s.num[row(ts+1):row(ts+1)+ids])
		copy(s.length[row(ts):row(ts)+ids], s.length[row(ts+1):row(ts+1)+ids])
		s.changed[ts] = false

		if cur != last {
			if wobble {
				wobbles++
			} else {
				s.changed[ts] = true
				s.num[row(ts)+cur] += mask
				s.length[row(ts)+cur] += int(float64(pos[ts+1]-pos[ts]) * mask)
				wobbles = 0
			}
			last = cur
		} else if !wobble {
			s.length[row(ts)+cur] += pos[ts+1] - pos[ts]
		}
	}
	return nil
}

// Value returns the loss of hypothesising segment id cand from position
// index t to the segment end given to FindTill.
func (s *SegmentLossTable) Value(cand, t int) float64 {
	v := 0.0
	for i := range s.ids {
		if n := s.num[t*s.ids+i]; n != 0 {
			v += n * s.loss.At(i, cand, 0)
		}
		if l := s.length[t*s.ids+i]; l != 0 {
			v += float64(l) * s.loss.At(i, cand, 1)
		}
	}
	return v
}

// Extend returns the loss of segment id cand starting at position index p.
// cursor and cached carry the previous query for the same segment end and
// must start at the segment end and zero. p must not exceed *cursor.
func (s *SegmentLossTable) Extend(pos []int, cand, p int, cursor *int, cached *float64) float64 {
	if p == *cursor {
		return *cached
	}
	if p > *cursor {
		panic(fmt.Sprintf("dynprog: segment loss queried forward: %d > %d", p, *cursor))
	}
	changed := false
	for q := *cursor - 1; q >= p; q-- {
		if s.changed[q] {
			changed = true
			break
		}
	}
	if !changed {
		*cached += float64(pos[*cursor]-pos[p]) * s.loss.At(s.ref.IDs[p], cand, 1)
		*cursor = p
		return *cached
	}
	*cached = s.Value(cand, p)
	*cursor = p
	return *cached
}
