// ABOUTME: Tests for the arithmetic evaluator, including grammar rejection cases.
// ABOUTME: The shell-command case is the regression test against dynamic eval.

package evaluator

import (
	"errors"
	"math"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"10*5", 50},
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"10/4", 2.5},
		{"-3", -3},
		{"--3", 3},
		{"-(2+3)*4", -20},
		{"2 * ( 3 + 4 )", 14},
		{"0.5 + 0.25", 0.75},
		{"100/10/2", 5},
		{"8-3-2", 3},
	}

	for _, tt := range tests {
		got, err := Evaluate(tt.expr)
		if err != nil {
			t.Errorf("Evaluate(%q): unexpected error: %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluateDivisionByZero(t *testing.T) {
	for _, expr := range []string{"1/0", "10/(5-5)", "1/-0"} {
		_, err := Evaluate(expr)
		if !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("Evaluate(%q): expected ErrDivisionByZero, got %v", expr, err)
		}
	}
}

func TestEvaluateParseErrors(t *testing.T) {
	tests := []struct {
		expr string
		pos  int
	}{
		{"2+", 2},
		{"", 0},
		{"(1+2", 4},
		{"1..2", 0},
		{"2**3", 2},
		{"rm -rf /", 0}, // shell commands are not arithmetic
		{"process.exit()", 0},
		{"1;2", 1},
		{"2 + x", 4},
	}

	for _, tt := range tests {
		_, err := Evaluate(tt.expr)
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("Evaluate(%q): expected ParseError, got %v", tt.expr, err)
			continue
		}
		if perr.Pos != tt.pos {
			t.Errorf("Evaluate(%q): expected error at position %d, got %d (%s)", tt.expr, tt.pos, perr.Pos, perr.Msg)
		}
	}
}
