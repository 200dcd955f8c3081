package vm

import (
	"net/netip"
	"strings"

	"github.com/x0sh/flow/internal/bytecode"
)

// execMatch runs one of the four match opcodes: look up the handler's
// MatchTable named by the B operand, dispatch the subject register (A)
// against the table's case labels per its Class, and jump to whichever
// target resolved. There is no separate JMATCH opcode — see DESIGN.md's
// Open Question resolution on match dispatch.
func (r *Runner) execMatch(op bytecode.Opcode, subjectReg, tableIdx uint16) error {
	table := r.h.Matches[tableIdx]
	subject := r.regs[subjectReg].Str

	for _, c := range table.Cases {
		label := r.prog.Consts.Strings[c.ConstIndex]
		if matchOne(op, subject, label, table.NoCase) {
			r.pc = c.Target
			return nil
		}
	}
	r.pc = table.ElsePC
	return nil
}

func matchOne(op bytecode.Opcode, subject, label string, noCase bool) bool {
	// Regex labels fold case via an inline (?i) flag on the pattern itself
	// rather than lowercasing subject/label like the other three classes:
	// lowercasing a regex source string can corrupt escapes (`\D` -> `\d`
	// changes meaning), where (?i) is RE2's own case-insensitive flag.
	if op == bytecode.Smatchr {
		pattern := label
		if noCase {
			pattern = "(?i)" + pattern
		}
		re, err := compileRegex(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(subject)
	}

	if noCase {
		subject = strings.ToLower(subject)
		label = strings.ToLower(label)
	}
	switch op {
	case bytecode.Smatcheq:
		return subject == label
	case bytecode.Smatchbeg:
		return strings.HasPrefix(subject, label)
	case bytecode.Smatchend:
		return strings.HasSuffix(subject, label)
	default:
		return false
	}
}

// regexMatch implements SREGMATCH: match subject against pattern, caching
// the capture groups so a later SREGGROUP in the same handler can read
// them back (spec.md §8 scenario 5's "SREGGROUP usable afterwards").
func (r *Runner) regexMatch(subject, pattern string) (bool, []string, error) {
	re, err := compileRegex(pattern)
	if err != nil {
		return false, nil, err
	}
	groups := re.FindStringSubmatch(subject)
	if groups == nil {
		return false, nil, nil
	}
	return true, groups, nil
}

// ipInCIDR implements PINCIDR. Plain net/netip rather than any third-party
// IP library: nothing in the retrieval pack ships one, and net/netip is
// the standard library's own modern (allocation-free, value-typed)
// address package — reaching for a dependency here would just be
// reinventing net/netip behind an extra import.
func ipInCIDR(ip, cidr string) (bool, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false, err
	}
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return false, err
	}
	return prefix.Contains(addr), nil
}
