package artifact

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DeployData returns the creation code followed by the ABI-encoded
// constructor arguments.
func (a *Artifact) DeployData(args ...any) ([]byte, error) {
	packed, err := a.PackConstructor(args...)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(a.Bytecode)+len(packed))
	out = append(out, a.Bytecode...)
	return append(out, packed...), nil
}

// PackConstructor ABI-encodes constructor arguments.
func (a *Artifact) PackConstructor(args ...any) ([]byte, error) {
	packed, err := PackArgs(a.ABI.Constructor.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s constructor: %w", a.ContractName, err)
	}
	return packed, nil
}

// PackMethod returns selector + encoded args for a method call.
func (a *Artifact) PackMethod(name string, args ...any) ([]byte, error) {
	m, ok := a.ABI.Methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, a.ContractName, name)
	}
	packed, err := PackArgs(m.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", a.ContractName, name, err)
	}
	return append(append([]byte{}, m.ID...), packed...), nil
}

// PackArgs encodes args against inputs. String values are coerced into the
// Go type the ABI expects so that config-sourced values ("0xabc...", "1000",
// "true") can be passed straight through.
func PackArgs(inputs abi.Arguments, args []any) ([]byte, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("expects %d args, got %d", len(inputs), len(args))
	}
	values := make([]any, len(args))
	for i, in := range inputs {
		v, err := Coerce(in.Type, args[i])
		if err != nil {
			name := in.Name
			if name == "" {
				name = "#" + strconv.Itoa(i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, in.Type.String(), err)
		}
		values[i] = v
	}
	return inputs.Pack(values...)
}

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// Coerce converts v to the Go type go-ethereum's ABI packer expects for typ.
// Values that are not strings or plain integers are passed through unchanged.
func Coerce(typ abi.Type, v any) (any, error) {
	switch x := v.(type) {
	case string:
		return coerceString(typ, strings.TrimSpace(x))
	case *common.Address:
		if x == nil {
			return nil, fmt.Errorf("nil address")
		}
		return *x, nil
	case int:
		return coerceInt(typ, big.NewInt(int64(x)), v)
	case int64:
		return coerceInt(typ, big.NewInt(x), v)
	case uint64:
		return coerceInt(typ, new(big.Int).SetUint64(x), v)
	}
	return v, nil
}

func coerceString(typ abi.Type, s string) (any, error) {
	switch typ.T {
	case abi.StringTy:
		return s, nil
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil
	case abi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", s)
		}
		return b, nil
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		return fitInt(typ, n)
	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes %q: %w", s, err)
		}
		return b, nil
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes%d %q: %w", typ.Size, s, err)
		}
		if len(b) > typ.Size {
			return nil, fmt.Errorf("value %q is longer than %d bytes", s, typ.Size)
		}
		arr := reflect.New(typ.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	}
	return nil, fmt.Errorf("cannot convert a string to %s; array and tuple types are not yet supported", typ.String())
}

func coerceInt(typ abi.Type, n *big.Int, orig any) (any, error) {
	if typ.T != abi.UintTy && typ.T != abi.IntTy {
		return orig, nil
	}
	return fitInt(typ, n)
}

// fitInt range-checks n against typ and returns it as uint8..uint64,
// int8..int64 or *big.Int, whichever the ABI packer expects.
func fitInt(typ abi.Type, n *big.Int) (any, error) {
	if typ.T == abi.UintTy {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for %s", n, typ.String())
		}
		if n.BitLen() > typ.Size {
			return nil, fmt.Errorf("value %s overflows %s", n, typ.String())
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(typ.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("value %s overflows %s", n, typ.String())
		}
	}

	target := typ.GetType()
	if target == bigIntType {
		return n, nil
	}
	if typ.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(target).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(target).Interface(), nil
}
