// Package bytecode defines Flow's packed instruction encoding and the
// compiled Program representation codegen emits and the VM executes
// (spec.md §3.4, §6.1). The opcode set is grounded directly in
// original_source/include/x0/flow/vm/Instruction.h's enum, renamed from
// its all-caps C convention to Go's exported-constant convention and
// extended with the SADDMULTI/NTICKS/NDUMPN opcodes SPEC_FULL.md restores
// from the rest of that header's surrounding sources.
package bytecode

// Opcode identifies one VM instruction. Values are stable across a
// compilation unit's lifetime (persisted programs rely on the numbering).
type Opcode uint16

const (
	Nop Opcode = iota

	// Control
	Exit
	Jmp
	Jn // jump if register is nonzero/true ("not zero")
	Jz // jump if register is zero/false

	// Copy
	Mov
	Imov

	// Numeric
	Nconst
	Nneg
	Nadd
	Niadd
	Nsub
	Nisub
	Nmul
	Nimul
	Ndiv
	Nidiv
	Nrem
	Nirem
	Nshl
	Nishl
	Nshr
	Nishr
	Npow
	Nipow
	Nand
	Niand
	Nor
	Nior
	Nxor
	Nixor
	Ncmpz
	Ncmpeq
	Nicmpeq
	Ncmpne
	Nicmpne
	Ncmple
	Nicmple
	Ncmpge
	Nicmpge
	Ncmplt
	Nicmplt
	Ncmpgt
	Nicmpgt

	// Boolean
	Bnot
	Band
	Bor
	Bxor

	// String
	Sconst
	Sadd
	Saddmulti // SPEC_FULL.md: concatenate C consecutive registers starting at B
	Ssubstr
	Scmpeq
	Scmpne
	Scmple
	Scmpge
	Scmplt
	Scmpgt
	Scmpbeg
	Scmpend
	Scontains
	Slen
	Sisempty
	Sprint
	Smatcheq
	Smatchbeg
	Smatchend
	Smatchr

	// IP / CIDR
	Pconst
	Pcmpeq
	Pcmpne
	Pincidr
	Cconst

	// Regex
	Rconst // SPEC_FULL.md: load a regex constant, filling a gap alongside Nconst/Sconst/Pconst/Cconst
	Sregmatch
	Sreggroup

	// Conversion
	I2s
	P2s
	C2s
	R2s
	S2i
	B2s     // SPEC_FULL.md: bool->string, filling a gap in the header's conversion set
	Surlenc // spec.md §6.1's authoritative conversion list: URL-encode a string
	Surldec // spec.md §6.1's authoritative conversion list: URL-decode a string

	// Arrays
	Asnew
	Asinit
	Annew
	Aninit
	Ainiti

	// Invocation
	Call
	Handler

	// SPEC_FULL.md debug opcodes, whose output `flowc run --trace` prints,
	// rather than wired to any interactive debugger (spec.md's Non-goals
	// explicitly exclude source-level debugging; these only record the
	// instruction count and register contents for the trace report).
	Nticks
	Ndumpn

	numOpcodes
)

var opcodeNames = map[Opcode]string{
	Nop:       "NOP",
	Exit:      "EXIT",
	Jmp:       "JMP",
	Jn:        "JN",
	Jz:        "JZ",
	Mov:       "MOV",
	Imov:      "IMOV",
	Nconst:    "NCONST",
	Nneg:      "NNEG",
	Nadd:      "NADD",
	Niadd:     "NIADD",
	Nsub:      "NSUB",
	Nisub:     "NISUB",
	Nmul:      "NMUL",
	Nimul:     "NIMUL",
	Ndiv:      "NDIV",
	Nidiv:     "NIDIV",
	Nrem:      "NREM",
	Nirem:     "NIREM",
	Nshl:      "NSHL",
	Nishl:     "NISHL",
	Nshr:      "NSHR",
	Nishr:     "NISHR",
	Npow:      "NPOW",
	Nipow:     "NIPOW",
	Nand:      "NAND",
	Niand:     "NIAND",
	Nor:       "NOR",
	Nior:      "NIOR",
	Nxor:      "NXOR",
	Nixor:     "NIXOR",
	Ncmpz:     "NCMPZ",
	Ncmpeq:    "NCMPEQ",
	Nicmpeq:   "NICMPEQ",
	Ncmpne:    "NCMPNE",
	Nicmpne:   "NICMPNE",
	Ncmple:    "NCMPLE",
	Nicmple:   "NICMPLE",
	Ncmpge:    "NCMPGE",
	Nicmpge:   "NICMPGE",
	Ncmplt:    "NCMPLT",
	Nicmplt:   "NICMPLT",
	Ncmpgt:    "NCMPGT",
	Nicmpgt:   "NICMPGT",
	Bnot:      "BNOT",
	Band:      "BAND",
	Bor:       "BOR",
	Bxor:      "BXOR",
	Sconst:    "SCONST",
	Sadd:      "SADD",
	Saddmulti: "SADDMULTI",
	Ssubstr:   "SSUBSTR",
	Scmpeq:    "SCMPEQ",
	Scmpne:    "SCMPNE",
	Scmple:    "SCMPLE",
	Scmpge:    "SCMPGE",
	Scmplt:    "SCMPLT",
	Scmpgt:    "SCMPGT",
	Scmpbeg:   "SCMPBEG",
	Scmpend:   "SCMPEND",
	Scontains: "SCONTAINS",
	Slen:      "SLEN",
	Sisempty:  "SISEMPTY",
	Sprint:    "SPRINT",
	Smatcheq:  "SMATCHEQ",
	Smatchbeg: "SMATCHBEG",
	Smatchend: "SMATCHEND",
	Smatchr:   "SMATCHR",
	Pconst:    "PCONST",
	Pcmpeq:    "PCMPEQ",
	Pcmpne:    "PCMPNE",
	Pincidr:   "PINCIDR",
	Cconst:    "CCONST",
	Rconst:    "RCONST",
	Sregmatch: "SREGMATCH",
	Sreggroup: "SREGGROUP",
	I2s:       "I2S",
	P2s:       "P2S",
	C2s:       "C2S",
	R2s:       "R2S",
	S2i:       "S2I",
	B2s:       "B2S",
	Surlenc:   "SURLENC",
	Surldec:   "SURLDEC",
	Asnew:     "ASNEW",
	Asinit:    "ASINIT",
	Annew:     "ANNEW",
	Aninit:    "ANINIT",
	Ainiti:    "ANINITI",
	Call:      "CALL",
	Handler:   "HANDLER",
	Nticks:    "NTICKS",
	Ndumpn:    "NDUMPN",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return "UNKNOWN"
}

// Signature describes which of A, B, C an opcode's operand fields carry and
// how to interpret them (register index vs. immediate/constant-pool
// index), mirroring Instruction.h's InstructionSig enum.
type Signature int

const (
	SigNone Signature = iota // –
	SigR                     // r
	SigRR                    // r,r
	SigRRR                   // r,r,r
	SigRI                    // r,imm
	SigRRI                   // r,r,imm
	SigRII                   // r,imm,imm
	SigI                     // imm
	SigII                    // imm,imm
	SigIIR                   // imm,imm,r
)

var signatures = map[Opcode]Signature{
	Nop:    SigNone,
	Exit:   SigI,
	Jmp:    SigI,
	Jn:     SigRI,
	Jz:     SigRI,
	Mov:    SigRR,
	Imov:   SigRI,

	Nconst: SigRI,
	Nneg:   SigRR,

	Sprint:   SigR,
	Sisempty: SigRR,
	Slen:     SigRR,
	Ncmpz:    SigRR,

	I2s: SigRR, P2s: SigRR, C2s: SigRR, R2s: SigRR, S2i: SigRR, B2s: SigRR,
	Surlenc: SigRR, Surldec: SigRR,

	Sconst:    SigRI,
	Pconst:    SigRI,
	Cconst:    SigRI,
	Rconst:    SigRI,
	Smatcheq:  SigRI,
	Smatchbeg: SigRI,
	Smatchend: SigRI,
	Smatchr:   SigRI,
	Sreggroup: SigRR,

	Asnew: SigRI,
	Annew: SigRI,

	Niadd: SigRRI, Nisub: SigRRI, Nimul: SigRRI, Nidiv: SigRRI, Nirem: SigRRI,
	Nishl: SigRRI, Nishr: SigRRI, Nipow: SigRRI, Niand: SigRRI, Nior: SigRRI, Nixor: SigRRI,
	Nicmpeq: SigRRI, Nicmpne: SigRRI, Nicmple: SigRRI, Nicmpge: SigRRI, Nicmplt: SigRRI, Nicmpgt: SigRRI,
	Asinit: SigRRI,
	Aninit: SigRRI,
	Ainiti: SigRII,

	Nadd: SigRRR, Nsub: SigRRR, Nmul: SigRRR, Ndiv: SigRRR, Nrem: SigRRR,
	Nshl: SigRRR, Nshr: SigRRR, Npow: SigRRR, Nand: SigRRR, Nor: SigRRR, Nxor: SigRRR,
	Ncmpeq: SigRRR, Ncmpne: SigRRR, Ncmple: SigRRR, Ncmpge: SigRRR, Ncmplt: SigRRR, Ncmpgt: SigRRR,
	Bnot: SigRR, Band: SigRRR, Bor: SigRRR, Bxor: SigRRR,
	Sadd: SigRRR, Ssubstr: SigRRR,
	Scmpeq: SigRRR, Scmpne: SigRRR, Scmple: SigRRR, Scmpge: SigRRR, Scmplt: SigRRR, Scmpgt: SigRRR,
	Scmpbeg: SigRRR, Scmpend: SigRRR, Scontains: SigRRR,
	Pcmpeq: SigRRR, Pcmpne: SigRRR, Pincidr: SigRRR,
	Sregmatch: SigRRR,
	Saddmulti: SigRRR,

	Call:    SigIIR,
	Handler: SigIIR,

	Nticks: SigNone,
	Ndumpn: SigR,
}

// Sig returns the operand signature for op.
func (op Opcode) Sig() Signature {
	if s, ok := signatures[op]; ok {
		return s
	}
	return SigNone
}

// IsPrivilegedCall reports whether op is one of the two native dispatch
// opcodes, for which C names a register base rather than a plain result
// register (spec.md §9 "native dispatch ABI").
func (op Opcode) IsPrivilegedCall() bool { return op == Call || op == Handler }
