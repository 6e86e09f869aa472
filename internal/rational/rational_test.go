package rational

import "testing"

func TestAddSubMulDiv(t *testing.T) {
	a := New(1, 2)
	b := New(1, 3)
	if got := a.Add(b); got.Num() != 5 || got.Den() != 6 {
		t.Errorf("1/2+1/3 = %s, want 5/6", got)
	}
	if got := a.Sub(b); got.Num() != 1 || got.Den() != 6 {
		t.Errorf("1/2-1/3 = %s, want 1/6", got)
	}
	if got := a.Mul(b); got.Num() != 1 || got.Den() != 6 {
		t.Errorf("1/2*1/3 = %s, want 1/6", got)
	}
	if got := a.Div(b); got.Num() != 3 || got.Den() != 2 {
		t.Errorf("1/2 / 1/3 = %s, want 3/2", got)
	}
}

func TestCompare(t *testing.T) {
	if !New(1, 2).Less(New(2, 3)) {
		t.Error("1/2 should be < 2/3")
	}
	if !New(4, 8).Equal(New(1, 2)) {
		t.Error("4/8 should equal 1/2 after reduction")
	}
}

func TestFloorCeil(t *testing.T) {
	cases := []struct {
		num, den   int64
		floor, ceil int64
	}{
		{5, 2, 2, 3},
		{-5, 2, -3, -2},
		{4, 2, 2, 2},
		{0, 1, 0, 0},
	}
	for _, c := range cases {
		r := New(c.num, c.den)
		if got := r.FloorInt(); got != c.floor {
			t.Errorf("floor(%d/%d) = %d, want %d", c.num, c.den, got, c.floor)
		}
		if got := r.Ceil().Num(); got != c.ceil {
			t.Errorf("ceil(%d/%d) = %d, want %d", c.num, c.den, got, c.ceil)
		}
	}
}

func TestFloat64Conversion(t *testing.T) {
	r := New(3, 4)
	if got := r.Float64(); got != 0.75 {
		t.Errorf("Float64() = %v, want 0.75", got)
	}
}

func TestDenDivByZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on zero denominator")
		}
	}()
	New(1, 0)
}
