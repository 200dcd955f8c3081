package bytecode

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		op      Opcode
		a, b, c uint16
	}{
		{Nadd, 3, 4, 5},
		{Jmp, 42, 0, 0},
		{Call, 7, 2, 9},
		{Nconst, 1, 65535, 0},
	}
	for _, c := range cases {
		in := Encode(c.op, c.a, c.b, c.c)
		if in.Opcode() != c.op {
			t.Fatalf("Opcode() = %v, want %v", in.Opcode(), c.op)
		}
		if in.A() != c.a || in.B() != c.b || in.C() != c.c {
			t.Fatalf("operands = (%d,%d,%d), want (%d,%d,%d)", in.A(), in.B(), in.C(), c.a, c.b, c.c)
		}
	}
}

func TestStringFormatsBySignature(t *testing.T) {
	cases := []struct {
		in   Instruction
		want string
	}{
		{Encode(Jmp, 10, 0, 0), "JMP 10"},
		{Encode(Mov, 1, 2, 0), "MOV r1, r2"},
		{Encode(Nconst, 3, 0, 0), "NCONST r3, 0"},
		{Encode(Call, 1, 2, 3), "CALL 1, 2, r3"},
	}
	for _, c := range cases {
		if got := c.in.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}
