package batch

// positionTable holds, for one position j, the summed weighted coefficients
// of every support-vector k-mer starting at j, one level per length.
type positionTable struct {
	levels []map[string]float64
}

func newPositionTable(degree int) *positionTable {
	t := &positionTable{levels: make([]map[string]float64, degree)}
	for d := range t.levels {
		t.levels[d] = make(map[string]float64)
	}
	return t
}

// build refills the table for position j.
func (t *positionTable) build(m *Model, j int) {
	for _, level := range t.levels {
		clear(level)
	}
	for i, sv := range m.SupportVectors {
		alpha := m.Alphas[i]
		for d := 1; d <= m.Degree && j+d <= len(sv); d++ {
			t.levels[d-1][sv[j:j+d]] += alpha * m.Weights[d-1]
		}
	}
}

// lookup walks the k-mers of seq starting at j, shortest first, and stops
// at the first one no support vector shares.
func (t *positionTable) lookup(seq []byte, j int) float64 {
	sum := 0.0
	for d := 1; d <= len(t.levels) && j+d <= len(seq); d++ {
		v, ok := t.levels[d-1][string(seq[j:j+d])]
		if !ok {
			break
		}
		sum += v
	}
	return sum
}
