package coding

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func xorBytes(a, b []byte) (out []byte) {
	out = make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		coefs     []byte
		expectErr bool
	}{
		{"xor pair", []byte{1, 1}, false},
		{"weighted triple", []byte{3, 7, 9}, false},
		{"single", []byte{5}, false},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := New(tt.coefs)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got '%v'", err)
			}
			if op.Inputs() != len(tt.coefs) {
				t.Fatalf("expected %d inputs, got %d", len(tt.coefs), op.Inputs())
			}
		})
	}
}

func TestCombine_Errors(t *testing.T) {
	op := NewXOR()
	a := make([]byte, 8)
	b := make([]byte, 8)

	tests := []struct {
		name string
		size int
		dst  []byte
		srcs [][]byte
	}{
		{"zero size", 0, make([]byte, 8), [][]byte{a, b}},
		{"short destination", 8, make([]byte, 4), [][]byte{a, b}},
		{"short input", 8, make([]byte, 8), [][]byte{a, b[:3]}},
		{"wrong arity", 8, make([]byte, 8), [][]byte{a}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := op.Combine(tt.size, tt.dst, tt.srcs...)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestCombine_XOR(t *testing.T) {
	a := []byte("hello world, pivot")
	b := []byte("repair pipeline!!!")
	dst := make([]byte, len(a))

	err := NewXOR().Combine(len(a), dst, a, b)
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	if !bytes.Equal(dst, xorBytes(a, b)) {
		t.Fatalf("expected xor output, got '%x'", dst)
	}
}

func TestCombine_PrefixOnly(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 4}
	dst := []byte{9, 9, 9, 9}

	err := NewXOR().Combine(2, dst, a, b)
	if err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	if !bytes.Equal(dst, []byte{0, 0, 9, 9}) {
		t.Fatalf("expected only first 2 bytes written, got '%v'", dst)
	}
}

func TestScale(t *testing.T) {
	src := []byte{1, 2, 3, 200}

	dst := make([]byte, len(src))
	if err := Scale(1, dst, src); err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	if !bytes.Equal(dst, src) {
		t.Fatalf("expected identity scale, got '%v'", dst)
	}

	if err := Scale(0, dst, src); err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	if !bytes.Equal(dst, make([]byte, len(src))) {
		t.Fatalf("expected zero scale, got '%v'", dst)
	}

	// 2*x in GF(2^8) with the 0x11d polynomial
	if err := Scale(2, dst, src); err != nil {
		t.Fatalf("expected no error, got '%v'", err)
	}
	want := []byte{2, 4, 6, 0x8d}
	if !bytes.Equal(dst, want) {
		t.Fatalf("expected '%v', got '%v'", want, dst)
	}

	if err := Scale(3, make([]byte, 2), src); err == nil {
		t.Fatalf("expected error for short destination, got nil")
	}
}

func TestXOR_Properties(t *testing.T) {
	op := NewXOR()

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 512).Draw(rt, "size")
		a := rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "a")
		b := rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "b")
		c := rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "c")

		ab := make([]byte, n)
		ba := make([]byte, n)
		if err := op.Combine(n, ab, a, b); err != nil {
			rt.Fatalf("combine failed: %v", err)
		}
		if err := op.Combine(n, ba, b, a); err != nil {
			rt.Fatalf("combine failed: %v", err)
		}
		if !bytes.Equal(ab, xorBytes(a, b)) {
			rt.Fatalf("combine differs from xor")
		}
		if !bytes.Equal(ab, ba) {
			rt.Fatalf("combine is order sensitive")
		}

		// (a^b)^c == a^(b^c)
		left := make([]byte, n)
		bc := make([]byte, n)
		right := make([]byte, n)
		_ = op.Combine(n, left, ab, c)
		_ = op.Combine(n, bc, b, c)
		_ = op.Combine(n, right, a, bc)
		if !bytes.Equal(left, right) {
			rt.Fatalf("combine is not associative")
		}

		// a^a == 0
		self := make([]byte, n)
		_ = op.Combine(n, self, a, a)
		if !bytes.Equal(self, make([]byte, n)) {
			rt.Fatalf("self combine is not zero")
		}
	})
}

func TestScale_Linearity(t *testing.T) {
	op := NewXOR()

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 256).Draw(rt, "size")
		coef := rapid.Byte().Draw(rt, "coef")
		a := rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "a")
		b := rapid.SliceOfN(rapid.Byte(), n, n).Draw(rt, "b")

		// c*(a^b) == c*a ^ c*b
		sum := make([]byte, n)
		_ = op.Combine(n, sum, a, b)
		left := make([]byte, n)
		if err := Scale(coef, left, sum); err != nil {
			rt.Fatalf("scale failed: %v", err)
		}

		ca := make([]byte, n)
		cb := make([]byte, n)
		_ = Scale(coef, ca, a)
		_ = Scale(coef, cb, b)
		right := make([]byte, n)
		_ = op.Combine(n, right, ca, cb)

		if !bytes.Equal(left, right) {
			rt.Fatalf("scale is not linear over xor for coef %d", coef)
		}
	})
}
