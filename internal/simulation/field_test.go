package simulation

import (
	"math"
	"testing"
)

func TestPressureFieldInitialPeak(t *testing.T) {
	field := PressureField(0)

	if len(field) != pressureGridSize {
		t.Fatalf("unexpected grid height: %d", len(field))
	}
	for i, row := range field {
		if len(row) != pressureGridSize {
			t.Fatalf("unexpected grid width at row %d: %d", i, len(row))
		}
	}

	// t=0 では波面半径0なので中心セルがピーク値になる
	center := pressureGridSize / 2
	if got := field[center][center]; got != 15.0 {
		t.Fatalf("center pressure = %v, want 15.0", got)
	}

	// 帯域外のセルはゼロ
	if got := field[0][0]; got != 0 {
		t.Fatalf("corner pressure = %v, want 0", got)
	}
}

func TestPressureFieldNonNegative(t *testing.T) {
	for _, tm := range []float64{0, 0.5, 1.0, 5.0, 10.0} {
		for _, row := range PressureField(tm) {
			for _, p := range row {
				if p < 0 {
					t.Fatalf("negative pressure %v at t=%v", p, tm)
				}
			}
		}
	}
}

func TestVelocityFieldOriginIsZero(t *testing.T) {
	center := velocityGridSize / 2
	for _, tm := range []float64{0, 0.1, 1.0, 9.9} {
		field := VelocityField(tm)
		if len(field) != velocityGridSize {
			t.Fatalf("unexpected grid height: %d", len(field))
		}
		v := field[center][center]
		if v.X != 0 || v.Y != 0 {
			t.Fatalf("origin velocity = %+v at t=%v, want zero", v, tm)
		}
	}
}

func TestVelocityFieldIsRadial(t *testing.T) {
	// t=0.1 で波面半径は3。中心から距離3のセルは帯域内に入る。
	field := VelocityField(0.1)
	center := velocityGridSize / 2

	outward := field[center+3][center]
	if outward.X <= 0 || outward.Y != 0 {
		t.Fatalf("expected outward +x velocity, got %+v", outward)
	}

	inward := field[center-3][center]
	if inward.X >= 0 || inward.Y != 0 {
		t.Fatalf("expected outward -x velocity, got %+v", inward)
	}

	if math.Abs(outward.X+inward.X) > 1e-9 {
		t.Fatalf("radial field is not symmetric: %v vs %v", outward.X, inward.X)
	}
}

func TestScalarEnvelopes(t *testing.T) {
	// スカラーサマリーはラスター場とは独立した閉形式
	if got := MaxPressureAt(0); got != 0 {
		t.Fatalf("MaxPressureAt(0) = %v, want 0 (sin(0) clamps to 0)", got)
	}
	want := 15.0 * math.Exp(-math.Pi/8)
	if got := MaxPressureAt(math.Pi / 4); math.Abs(got-want) > 1e-12 {
		t.Fatalf("MaxPressureAt(pi/4) = %v, want %v", got, want)
	}

	if got := MaxVelocityAt(0); got != 350.0 {
		t.Fatalf("MaxVelocityAt(0) = %v, want 350", got)
	}
	// cos(1.5t) が負になる時刻では0にクランプされる
	if got := MaxVelocityAt(2.0); got != 0 {
		t.Fatalf("MaxVelocityAt(2) = %v, want 0", got)
	}
}

func TestNewFrameTimeMapping(t *testing.T) {
	frame := NewFrame(25, 250, 10.0)

	if frame.Index != 25 {
		t.Fatalf("frame index = %d, want 25", frame.Index)
	}
	if math.Abs(frame.Time-1.0) > 1e-12 {
		t.Fatalf("frame time = %v, want 1.0", frame.Time)
	}
	if frame.MaxPressure != MaxPressureAt(1.0) {
		t.Fatalf("frame max_pressure = %v, want %v", frame.MaxPressure, MaxPressureAt(1.0))
	}
	if frame.MaxVelocity != MaxVelocityAt(1.0) {
		t.Fatalf("frame max_velocity = %v, want %v", frame.MaxVelocity, MaxVelocityAt(1.0))
	}
	if len(frame.PressureField) != pressureGridSize || len(frame.VelocityField) != velocityGridSize {
		t.Fatal("frame fields have unexpected grid sizes")
	}
}
