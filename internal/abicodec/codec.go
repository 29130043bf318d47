// Package abicodec encodes contract calls and decodes event logs from a
// human-readable ABI (the "function f(type) ..." / "event E(...)" format).
package abicodec

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ContractCallSpec names one function of the ABI and the values to call it with.
// Function is either a bare name ("mintNFT") or a canonical signature ("mintNFT(string)").
type ContractCallSpec struct {
	Function string
	Args     []any
}

// EncodingError reports a call that does not fit the declared signature.
type EncodingError struct {
	Function string
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("abi: encode %s: %v", e.Function, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Codec is immutable after Parse and safe for concurrent use.
type Codec struct {
	abi abi.ABI
}

// Parse builds a Codec from human-readable ABI entries. The list is the sole
// source of truth for selectors and event topics.
func Parse(signatures []string) (*Codec, error) {
	c := &Codec{
		abi: abi.ABI{
			Methods: make(map[string]abi.Method),
			Events:  make(map[string]abi.Event),
		},
	}
	for _, sig := range signatures {
		if strings.TrimSpace(sig) == "" {
			continue
		}
		e, err := parseEntry(sig)
		if err != nil {
			return nil, fmt.Errorf("abi: %w", err)
		}
		switch e.kind {
		case kindFunction:
			name := abi.ResolveNameConflict(e.name, func(s string) bool { _, ok := c.abi.Methods[s]; return ok })
			m, err := e.method(name)
			if err != nil {
				return nil, fmt.Errorf("abi: %w", err)
			}
			c.abi.Methods[name] = m
		case kindEvent:
			name := abi.ResolveNameConflict(e.name, func(s string) bool { _, ok := c.abi.Events[s]; return ok })
			ev, err := e.event(name)
			if err != nil {
				return nil, fmt.Errorf("abi: %w", err)
			}
			c.abi.Events[name] = ev
		}
	}
	return c, nil
}

// MustParse is Parse for package-level ABI definitions.
func MustParse(signatures []string) *Codec {
	c, err := Parse(signatures)
	if err != nil {
		panic(err)
	}
	return c
}

// Method resolves a function by name or canonical signature.
func (c *Codec) Method(ref string) (abi.Method, error) {
	ref = strings.TrimSpace(ref)
	if m, ok := c.abi.Methods[ref]; ok {
		return m, nil
	}
	for _, m := range c.abi.Methods {
		if m.Sig == ref {
			return m, nil
		}
	}
	return abi.Method{}, fmt.Errorf("function %q not declared in abi", ref)
}

// HasMethod reports whether ref resolves to a declared function.
func (c *Codec) HasMethod(ref string) bool {
	_, err := c.Method(ref)
	return err == nil
}

// Selector returns the 4-byte function selector.
func (c *Codec) Selector(ref string) ([]byte, error) {
	m, err := c.Method(ref)
	if err != nil {
		return nil, &EncodingError{Function: ref, Err: err}
	}
	out := make([]byte, len(m.ID))
	copy(out, m.ID)
	return out, nil
}

// EncodeCall returns selector || packed arguments.
func (c *Codec) EncodeCall(spec ContractCallSpec) ([]byte, error) {
	m, err := c.Method(spec.Function)
	if err != nil {
		return nil, &EncodingError{Function: spec.Function, Err: err}
	}
	if len(spec.Args) != len(m.Inputs) {
		return nil, &EncodingError{
			Function: m.Sig,
			Err:      fmt.Errorf("expected %d arguments, got %d", len(m.Inputs), len(spec.Args)),
		}
	}

	values := make([]any, len(spec.Args))
	for i, arg := range spec.Args {
		v, err := coerce(m.Inputs[i].Type, arg)
		if err != nil {
			return nil, &EncodingError{Function: m.Sig, Err: fmt.Errorf("argument %d: %w", i, err)}
		}
		values[i] = v
	}

	packed, err := m.Inputs.Pack(values...)
	if err != nil {
		return nil, &EncodingError{Function: m.Sig, Err: err}
	}

	out := make([]byte, 0, len(m.ID)+len(packed))
	out = append(out, m.ID...)
	return append(out, packed...), nil
}

// DecodeOutput unpacks the return data of a read-only call.
func (c *Codec) DecodeOutput(ref string, data []byte) ([]any, error) {
	m, err := c.Method(ref)
	if err != nil {
		return nil, fmt.Errorf("abi: %w", err)
	}
	if len(data) == 0 && len(m.Outputs) > 0 {
		return nil, fmt.Errorf("abi: %s returned no data", m.Sig)
	}
	values, err := m.Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("abi: decode %s output: %w", m.Sig, err)
	}
	return values, nil
}
