package abicodec

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecodedEvent is a log matched against a known event signature.
type DecodedEvent struct {
	Name      string
	Signature string
	Address   common.Address
	LogIndex  uint
	Args      map[string]any
}

// AddressArg returns the named argument when it decoded to an address.
func (e *DecodedEvent) AddressArg(name string) (common.Address, bool) {
	v, ok := e.Args[name].(common.Address)
	return v, ok
}

func (e *DecodedEvent) BigIntArg(name string) (*big.Int, bool) {
	v, ok := e.Args[name].(*big.Int)
	return v, ok
}

// Event resolves an event by name ("Transfer"), canonical signature
// ("Transfer(address,address,uint256)") or a full human-readable entry,
// which does not need to be part of the codec's ABI.
func (c *Codec) Event(ref string) (abi.Event, error) {
	ref = strings.TrimSpace(ref)
	if ev, ok := c.abi.Events[ref]; ok {
		return ev, nil
	}
	for _, ev := range c.abi.Events {
		if ev.Sig == ref {
			return ev, nil
		}
	}
	if strings.HasPrefix(ref, "event ") {
		e, err := parseEntry(ref)
		if err != nil {
			return abi.Event{}, fmt.Errorf("abi: %w", err)
		}
		return e.event(e.name)
	}
	return abi.Event{}, fmt.Errorf("abi: event %q not declared", ref)
}

// DecodeLog matches log.Topics[0] against each known event. No match is the
// common case (other contracts, other events) and yields nil, nil. An error
// means the topic matched but the payload does not fit the declared
// parameters, e.g. an ERC-20 Transfer checked against the ERC-721 shape.
func (c *Codec) DecodeLog(log types.Log, known []string) (*DecodedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}
	for _, ref := range known {
		ev, err := c.Event(ref)
		if err != nil {
			return nil, err
		}
		if ev.Anonymous || ev.ID != log.Topics[0] {
			continue
		}
		return decodeEvent(ev, log)
	}
	return nil, nil
}

func decodeEvent(ev abi.Event, log types.Log) (*DecodedEvent, error) {
	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("abi: %s expects %d indexed topics, log has %d", ev.Sig, len(indexed), len(log.Topics)-1)
	}

	args := make(map[string]any, len(ev.Inputs))
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("abi: decode %s topics: %w", ev.Sig, err)
	}
	if err := ev.Inputs.UnpackIntoMap(args, log.Data); err != nil {
		return nil, fmt.Errorf("abi: decode %s data: %w", ev.Sig, err)
	}

	return &DecodedEvent{
		Name:      ev.RawName,
		Signature: ev.Sig,
		Address:   log.Address,
		LogIndex:  log.Index,
		Args:      args,
	}, nil
}

// EncodeLog builds the log a contract would emit for ref with args in
// declaration order. Indexed dynamic types are not supported since their
// topic is a hash that cannot be decoded back.
func (c *Codec) EncodeLog(ref string, address common.Address, args ...any) (types.Log, error) {
	ev, err := c.Event(ref)
	if err != nil {
		return types.Log{}, err
	}
	if len(args) != len(ev.Inputs) {
		return types.Log{}, &EncodingError{
			Function: ev.Sig,
			Err:      fmt.Errorf("expected %d arguments, got %d", len(ev.Inputs), len(args)),
		}
	}

	topics := []common.Hash{ev.ID}
	var data []any
	for i, in := range ev.Inputs {
		v, err := coerce(in.Type, args[i])
		if err != nil {
			return types.Log{}, &EncodingError{Function: ev.Sig, Err: fmt.Errorf("argument %d: %w", i, err)}
		}
		if !in.Indexed {
			data = append(data, v)
			continue
		}
		switch in.Type.T {
		case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.ArrayTy, abi.TupleTy:
			return types.Log{}, &EncodingError{Function: ev.Sig, Err: fmt.Errorf("indexed %s is not supported", in.Type.String())}
		}
		rule, err := abi.MakeTopics([]any{v})
		if err != nil {
			return types.Log{}, &EncodingError{Function: ev.Sig, Err: err}
		}
		topics = append(topics, rule[0][0])
	}

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return types.Log{}, &EncodingError{Function: ev.Sig, Err: err}
	}
	return types.Log{Address: address, Topics: topics, Data: packed}, nil
}
