package abicodec

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

type entryKind int

const (
	kindFunction entryKind = iota
	kindEvent
)

// entry is one parsed line of a human-readable ABI.
type entry struct {
	kind       entryKind
	name       string
	inputs     []param
	outputs    []param
	mutability string
	anonymous  bool
}

type param struct {
	typ     string
	name    string
	indexed bool
}

// parseEntry parses a single human-readable ABI entry. Supported forms:
//
//	function mintNFT(string memory tokenURI_) public payable
//	function MINT_PRICE() public view returns (uint256)
//	event Transfer(address indexed from, address indexed to, uint256 indexed tokenId)
//	mintNFT(string)
func parseEntry(line string) (*entry, error) {
	s := strings.TrimSpace(line)
	e := &entry{kind: kindFunction, mutability: "nonpayable"}

	switch {
	case strings.HasPrefix(s, "function "):
		s = strings.TrimSpace(strings.TrimPrefix(s, "function "))
	case strings.HasPrefix(s, "event "):
		e.kind = kindEvent
		s = strings.TrimSpace(strings.TrimPrefix(s, "event "))
	}

	open := strings.IndexByte(s, '(')
	if open <= 0 {
		return nil, fmt.Errorf("malformed signature %q", line)
	}
	e.name = strings.TrimSpace(s[:open])
	if strings.ContainsAny(e.name, " \t") {
		return nil, fmt.Errorf("malformed name in %q", line)
	}

	end, err := matchParen(s, open)
	if err != nil {
		return nil, fmt.Errorf("%w in %q", err, line)
	}
	if e.inputs, err = parseParams(s[open+1:end], e.kind == kindEvent); err != nil {
		return nil, fmt.Errorf("%w in %q", err, line)
	}

	rest := strings.TrimSpace(s[end+1:])
	if idx := strings.Index(rest, "returns"); idx >= 0 {
		ret := strings.TrimSpace(rest[idx+len("returns"):])
		if !strings.HasPrefix(ret, "(") {
			return nil, fmt.Errorf("malformed returns clause in %q", line)
		}
		retEnd, err := matchParen(ret, 0)
		if err != nil {
			return nil, fmt.Errorf("%w in %q", err, line)
		}
		if e.outputs, err = parseParams(ret[1:retEnd], false); err != nil {
			return nil, fmt.Errorf("%w in %q", err, line)
		}
		rest = rest[:idx]
	}

	for _, mod := range strings.Fields(rest) {
		switch mod {
		case "view", "pure", "payable", "nonpayable":
			e.mutability = mod
		case "anonymous":
			e.anonymous = true
		case "public", "external", "internal", "private", "virtual", "override":
		default:
			return nil, fmt.Errorf("unknown modifier %q in %q", mod, line)
		}
	}
	return e, nil
}

func matchParen(s string, open int) (int, error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses")
}

func parseParams(list string, allowIndexed bool) ([]param, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}
	if strings.ContainsAny(list, "()") {
		return nil, fmt.Errorf("tuple parameters are not supported")
	}

	parts := strings.Split(list, ",")
	out := make([]param, 0, len(parts))
	for _, part := range parts {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			return nil, fmt.Errorf("empty parameter")
		}
		p := param{typ: normalizeType(tokens[0])}
		for _, tok := range tokens[1:] {
			switch tok {
			case "indexed":
				if !allowIndexed {
					return nil, fmt.Errorf("indexed outside of event")
				}
				p.indexed = true
			case "memory", "calldata", "storage", "payable":
			default:
				if p.name != "" {
					return nil, fmt.Errorf("unexpected token %q", tok)
				}
				p.name = tok
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// normalizeType expands the uint/int aliases so selectors hash the canonical form.
func normalizeType(t string) string {
	base, suffix := t, ""
	if i := strings.IndexByte(t, '['); i >= 0 {
		base, suffix = t[:i], t[i:]
	}
	switch base {
	case "uint", "int":
		base += "256"
	case "byte":
		base = "bytes1"
	}
	return base + suffix
}

func (e *entry) arguments(params []param, event bool) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(params))
	for i, p := range params {
		typ, err := abi.NewType(p.typ, "", nil)
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %d: %w", e.name, i, err)
		}
		name := p.name
		if name == "" && event {
			name = fmt.Sprintf("arg%d", i)
		}
		args = append(args, abi.Argument{Name: name, Type: typ, Indexed: p.indexed})
	}
	return args, nil
}

func (e *entry) method(name string) (abi.Method, error) {
	inputs, err := e.arguments(e.inputs, false)
	if err != nil {
		return abi.Method{}, err
	}
	outputs, err := e.arguments(e.outputs, false)
	if err != nil {
		return abi.Method{}, err
	}
	isConst := e.mutability == "view" || e.mutability == "pure"
	isPayable := e.mutability == "payable"
	return abi.NewMethod(name, e.name, abi.Function, e.mutability, isConst, isPayable, inputs, outputs), nil
}

func (e *entry) event(name string) (abi.Event, error) {
	inputs, err := e.arguments(e.inputs, true)
	if err != nil {
		return abi.Event{}, err
	}
	return abi.NewEvent(name, e.name, e.anonymous, inputs), nil
}
