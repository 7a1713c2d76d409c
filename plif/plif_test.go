package plif

import (
	"math"
	"testing"
)

func TestLookupInterpolates(t *testing.T) {
	p := New([]float64{0, 10, 20}, []float64{0, 1, -1})

	cases := []struct {
		x    float64
		want float64
	}{
		{0, 0},
		{5, 0.5},
		{10, 1},
		{15, 0},
		{20, -1},
	}
	for _, tc := range cases {
		if got := p.Lookup(tc.x, nil); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("Lookup(%v) = %v, want %v", tc.x, got, tc.want)
		}
	}
}

func TestLookupOutsideRange(t *testing.T) {
	p := New([]float64{1, 10}, []float64{2, 3})
	if got := p.Lookup(0.5, nil); got != NegInf {
		t.Errorf("below min: got %v, want NegInf", got)
	}
	if got := p.Lookup(11, nil); got != NegInf {
		t.Errorf("above max: got %v, want NegInf", got)
	}
}

func TestLookupClampsInsideRange(t *testing.T) {
	p := New([]float64{5, 10}, []float64{2, 3})
	p.MinValue = 0
	p.MaxValue = 100
	if got := p.Lookup(1, nil); got != 2 {
		t.Errorf("left clamp: got %v, want 2", got)
	}
	if got := p.Lookup(50, nil); got != 3 {
		t.Errorf("right clamp: got %v, want 3", got)
	}
}

func TestLookupUsesFeatureChannel(t *testing.T) {
	p := New([]float64{0, 1}, []float64{0, 10})
	p.MinValue = 0
	p.MaxValue = 1000
	p.UseSVM = 2

	if !p.NeedsFeatures() {
		t.Fatal("NeedsFeatures = false, want true")
	}
	if p.FeatureChannels() != 2 {
		t.Errorf("FeatureChannels = %d, want 2", p.FeatureChannels())
	}
	got := p.Lookup(500, []float64{0.9, 0.25})
	if math.Abs(got-2.5) > 1e-12 {
		t.Errorf("got %v, want 2.5", got)
	}
}

func TestTransforms(t *testing.T) {
	limits := []float64{0, math.Log(11)}
	p := New(limits, []float64{0, 1})
	p.Transform = LogPlus1
	p.MaxValue = 100

	if got := p.Lookup(10, nil); math.Abs(got-1) > 1e-12 {
		t.Errorf("log(+1) at 10: got %v, want 1", got)
	}

	var tr Transform
	if err := tr.UnmarshalText([]byte("log(+3)")); err != nil {
		t.Fatal(err)
	}
	if tr != LogPlus3 {
		t.Errorf("UnmarshalText = %v, want log(+3)", tr)
	}
	if err := tr.UnmarshalText([]byte("sqrt")); err == nil {
		t.Error("expected error for unknown transform")
	}
}

func TestAccumulateDerivative(t *testing.T) {
	p := New([]float64{0, 10, 20}, []float64{0, 1, -1})
	acc := NewDerivatives()

	p.AccumulateDerivative(acc, 12.5, nil)
	p.AccumulateDerivative(acc, 0, nil)
	p.AccumulateDerivative(acc, 30, nil) // outside range

	bins := acc.Bins(p)
	want := []float64{1, 0.75, 0.25}
	for i := range want {
		if math.Abs(bins[i]-want[i]) > 1e-12 {
			t.Errorf("bin %d = %v, want %v", i, bins[i], want[i])
		}
	}
	if math.Abs(acc.Total(p)-2) > 1e-12 {
		t.Errorf("Total = %v, want 2", acc.Total(p))
	}

	acc.Reset()
	if acc.Bins(p) != nil || acc.Len() != 0 {
		t.Error("Reset did not clear accumulators")
	}
}

func TestDerivativeMatchesFiniteDifference(t *testing.T) {
	p := New([]float64{0, 4, 9}, []float64{1, -2, 3})
	acc := NewDerivatives()
	x := 6.0
	p.AccumulateDerivative(acc, x, nil)
	bins := acc.Bins(p)

	base := p.Lookup(x, nil)
	for i := range p.Penalties {
		p.Penalties[i] += 1
		diff := p.Lookup(x, nil) - base
		p.Penalties[i] -= 1
		if math.Abs(diff-bins[i]) > 1e-9 {
			t.Errorf("d/dpenalty[%d] = %v, accumulated %v", i, diff, bins[i])
		}
	}
}

func TestSum(t *testing.T) {
	a := New([]float64{0, 100}, []float64{0, 1})
	b := New([]float64{0, 50}, []float64{2, 2})
	s := NewSum(a, b)

	if s.MaxReach() != 100 {
		t.Errorf("MaxReach = %v, want 100", s.MaxReach())
	}
	if got := s.Lookup(50, nil); math.Abs(got-2.5) > 1e-12 {
		t.Errorf("Lookup(50) = %v, want 2.5", got)
	}
	if got := s.Lookup(60, nil); got != NegInf {
		t.Errorf("Lookup(60) = %v, want NegInf", got)
	}

	if s.FeatureChannels() != 0 {
		t.Errorf("FeatureChannels = %d, want 0", s.FeatureChannels())
	}
	b.UseSVM = 3
	if s.FeatureChannels() != 3 {
		t.Errorf("FeatureChannels = %d, want 3", s.FeatureChannels())
	}
	b.UseSVM = 0

	acc := NewDerivatives()
	s.AccumulateDerivative(acc, 25, nil)
	if acc.Len() != 2 {
		t.Errorf("accumulated %d functions, want 2", acc.Len())
	}
}

func TestValidate(t *testing.T) {
	if err := New([]float64{0, 1}, []float64{0}).Validate(); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := New([]float64{2, 1}, []float64{0, 0}).Validate(); err == nil {
		t.Error("expected unsorted limits error")
	}
	if err := New([]float64{1, 2}, []float64{0, 0}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
