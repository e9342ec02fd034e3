package trajectory

import (
	"math"
	"math/rand"
	"testing"
)

const tol = 1e-12

func TestUnwrapStepWithinHalfTurn(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		prev := rng.Float64()*20 - 10
		for i := 0; i < 50; i++ {
			// smooth signal plus an arbitrary number of full turns
			raw := prev + (rng.Float64()*2-1)*math.Pi + float64(rng.Intn(11)-5)*2*math.Pi
			next := Unwrap(prev, raw)

			d := next - prev
			if d <= -math.Pi-1e-9 || d > math.Pi+1e-9 {
				t.Fatalf("step %v outside (-pi, pi] (prev=%v raw=%v)", d, prev, raw)
			}
			k := (next - raw) / (2 * math.Pi)
			if math.Abs(k-math.Round(k)) > 1e-9 {
				t.Fatalf("unwrapped %v is not raw %v plus whole turns", next, raw)
			}
			prev = next
		}
	}
}

func TestUnwrapBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		prev, raw float64
		want      float64
	}{
		{"identity", 0.3, 0.3, 0.3},
		{"branch cut forward", 3.1, -3.1, 2*math.Pi - 3.1},
		{"branch cut backward", -3.1, 3.1, 3.1 - 2*math.Pi},
		{"exactly half turn stays positive", 0, math.Pi, math.Pi},
		{"minus half turn maps to plus", 0, -math.Pi, math.Pi},
		{"many turns away", 4 * math.Pi, 0.2, 4*math.Pi + 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Unwrap(tt.prev, tt.raw); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Unwrap(%v, %v) = %v, want %v", tt.prev, tt.raw, got, tt.want)
			}
		})
	}
}

func TestCircleSampleAtZero(t *testing.T) {
	p := Sample(NewCircle(1, 0.2), 0)

	checks := []struct {
		name      string
		got, want float64
	}{
		{"x", p.X, 1},
		{"y", p.Y, 0},
		{"heading", p.Theta, math.Pi / 2},
		{"speed", p.Speed, 0.2},
		{"curvature", p.Curvature, 1},
		{"omega", p.Omega, 0.2},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > tol {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestFigure8Derivatives(t *testing.T) {
	f := NewFigure8(0.4, 1.3)
	h := 1e-5

	for _, ts := range []float64{0, 0.7, 2.1, 4.4} {
		d := f.Eval(ts)
		lo, hi := f.Eval(ts-h), f.Eval(ts+h)

		if math.Abs((hi.X-lo.X)/(2*h)-d.DX) > 1e-6 || math.Abs((hi.Y-lo.Y)/(2*h)-d.DY) > 1e-6 {
			t.Errorf("t=%v: velocity mismatch with finite difference", ts)
		}
		if math.Abs((hi.DX-lo.DX)/(2*h)-d.DDX) > 1e-6 || math.Abs((hi.DY-lo.DY)/(2*h)-d.DDY) > 1e-6 {
			t.Errorf("t=%v: acceleration mismatch with finite difference", ts)
		}
	}
}

func TestSineStraightSegment(t *testing.T) {
	p := Sample(NewSine(0.5, 0, 0.1), 3)
	if p.Theta != 0 || p.Curvature != 0 || p.Omega != 0 {
		t.Errorf("flat sine should be straight, got %+v", p)
	}
	if math.Abs(p.Speed-0.5) > tol {
		t.Errorf("speed = %v, want 0.5", p.Speed)
	}
}

type restCurve struct{}

func (restCurve) Name() string          { return "rest" }
func (restCurve) Eval(t float64) Derivs { return Derivs{X: 1, Y: 2} }

func TestSampleAtRest(t *testing.T) {
	p := Sample(restCurve{}, 0)
	if math.IsNaN(p.Curvature) || math.IsNaN(p.Omega) {
		t.Fatal("curvature must stay finite at zero speed")
	}
	if p.Omega != 0 || p.Speed != 0 {
		t.Errorf("expected zero feedforward at rest, got %+v", p)
	}
}

func TestBuildRefsShapes(t *testing.T) {
	gen := NewGenerator(NewFigure8(0.4, 1))

	h, err := gen.BuildRefs(0, 2, 0.1, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(h.Xref) != 3 {
		t.Errorf("expected 3 state references, got %d", len(h.Xref))
	}
	for i, row := range h.Xref {
		if len(row) != 3 {
			t.Errorf("Xref[%d] has %d entries, want 3", i, len(row))
		}
	}
	if len(h.Uref) != 2 {
		t.Errorf("expected 2 input references, got %d", len(h.Uref))
	}
	for i, row := range h.Uref {
		if len(row) != 2 {
			t.Errorf("Uref[%d] has %d entries, want 2", i, len(row))
		}
	}
}

func TestBuildRefsSamplesCurve(t *testing.T) {
	c := NewCircle(2, 0.5)
	gen := NewGenerator(c)

	h, err := gen.BuildRefs(1.0, 4, 0.25, math.Pi)
	if err != nil {
		t.Fatal(err)
	}

	for k := 0; k <= 4; k++ {
		p := Sample(c, 1.0+float64(k)*0.25)
		if math.Abs(h.Xref[k][0]-p.X) > tol || math.Abs(h.Xref[k][1]-p.Y) > tol {
			t.Errorf("stage %d position mismatch", k)
		}
		if k < 4 && (math.Abs(h.Uref[k][0]-p.Speed) > tol || math.Abs(h.Uref[k][1]-p.Omega) > tol) {
			t.Errorf("stage %d input mismatch", k)
		}
	}
}

func TestBuildRefsHeadingFollowsSeed(t *testing.T) {
	gen := NewGenerator(NewCircle(1, 0.2))

	// plant has spun up five full turns plus the curve's start heading
	seed := math.Pi/2 + 10*math.Pi
	h, err := gen.BuildRefs(0, 5, 0.1, seed)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(h.Xref[0][2]-seed) > 1e-9 {
		t.Errorf("first heading %v should align with seed %v", h.Xref[0][2], seed)
	}
	prev := seed
	for k, row := range h.Xref {
		d := row[2] - prev
		if d <= -math.Pi || d > math.Pi {
			t.Errorf("stage %d heading jump %v", k, d)
		}
		prev = row[2]
	}
}

func TestBuildRefsCrossesBranchCut(t *testing.T) {
	// heading passes through pi near t = 5*pi/2 on this circle
	gen := NewGenerator(NewCircle(1, 1))
	t0 := 5*math.Pi/2 - 0.3

	h, err := gen.BuildRefs(t0, 6, 0.1, Sample(gen.Curve(), t0).Theta)
	if err != nil {
		t.Fatal(err)
	}
	for k := 1; k < len(h.Xref); k++ {
		if d := h.Xref[k][2] - h.Xref[k-1][2]; math.Abs(d-0.1) > 1e-9 {
			t.Errorf("stage %d heading step %v, want 0.1", k, d)
		}
	}
}

func TestBuildRefsInvalidArgs(t *testing.T) {
	gen := NewGenerator(NewFigure8(0.4, 1))

	if _, err := gen.BuildRefs(0, 0, 0.1, 0); err == nil {
		t.Error("expected error for zero horizon")
	}
	if _, err := gen.BuildRefs(0, 3, 0, 0); err == nil {
		t.Error("expected error for zero sampling time")
	}
}

func TestNewCurve(t *testing.T) {
	for _, name := range Names() {
		c, err := NewCurve(name, nil)
		if err != nil {
			t.Fatalf("NewCurve(%q): %v", name, err)
		}
		if c.Name() != name {
			t.Errorf("curve %q reports name %q", name, c.Name())
		}
	}

	c, err := NewCurve("circle", map[string]float64{"r": 3})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.(*Circle); got.R != 3 || got.W != DefaultCircleW {
		t.Errorf("unexpected circle params %+v", got)
	}

	if _, err := NewCurve("spiral", nil); err == nil {
		t.Error("expected error for unknown curve")
	}
}
