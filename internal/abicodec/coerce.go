package abicodec

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// coerce converts primitive Go values into the exact Go type go-ethereum's
// packer expects for t. Values that already have that type pass through.
func coerce(t abi.Type, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("nil value for %s", t.String())
	}
	if t.T == abi.UintTy || t.T == abi.IntTy {
		return coerceInteger(t, v)
	}
	if target := t.GetType(); target != nil && reflect.TypeOf(v) == target {
		return v, nil
	}

	switch t.T {
	case abi.AddressTy:
		switch x := v.(type) {
		case string:
			if !common.IsHexAddress(x) {
				return nil, fmt.Errorf("invalid address %q", x)
			}
			return common.HexToAddress(x), nil
		case []byte:
			if len(x) != common.AddressLength {
				return nil, fmt.Errorf("address must be %d bytes, got %d", common.AddressLength, len(x))
			}
			return common.BytesToAddress(x), nil
		}
	case abi.BytesTy:
		if s, ok := v.(string); ok {
			b, err := hexutil.Decode(s)
			if err != nil {
				return nil, fmt.Errorf("bytes argument: %w", err)
			}
			return b, nil
		}
	case abi.FixedBytesTy:
		var raw []byte
		switch x := v.(type) {
		case []byte:
			raw = x
		case string:
			b, err := hexutil.Decode(x)
			if err != nil {
				return nil, fmt.Errorf("%s argument: %w", t.String(), err)
			}
			raw = b
		case common.Hash:
			raw = x.Bytes()
		default:
			return nil, fmt.Errorf("cannot use %T as %s", v, t.String())
		}
		if len(raw) != t.Size {
			return nil, fmt.Errorf("%s needs %d bytes, got %d", t.String(), t.Size, len(raw))
		}
		out := reflect.New(t.GetType()).Elem()
		reflect.Copy(out, reflect.ValueOf(raw))
		return out.Interface(), nil
	}
	// Let the packer produce the type error for everything else.
	return v, nil
}

func coerceInteger(t abi.Type, v any) (any, error) {
	n, err := toBigInt(v)
	if err != nil {
		return nil, err
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for %s", n, t.String())
		}
		if n.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s overflows %s", n, t.String())
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("value %s overflows %s", n, t.String())
		}
	}
	if t.Size > 64 {
		return n, nil
	}

	out := reflect.New(t.GetType()).Elem()
	if t.T == abi.UintTy {
		out.SetUint(n.Uint64())
	} else {
		out.SetInt(n.Int64())
	}
	return out.Interface(), nil
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("nil *big.Int")
		}
		return new(big.Int).Set(x), nil
	case big.Int:
		return new(big.Int).Set(&x), nil
	case int:
		return big.NewInt(int64(x)), nil
	case int8:
		return big.NewInt(int64(x)), nil
	case int16:
		return big.NewInt(int64(x)), nil
	case int32:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case uint:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case string:
		s := strings.TrimSpace(x)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, err := hexutil.DecodeBig(s)
			if err != nil {
				return nil, fmt.Errorf("invalid integer %q: %w", x, err)
			}
			return n, nil
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot use %T as integer", v)
	}
}
