package decoder

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"escrowScope/internal/model"
)

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

// asAmount reads a uint256 token amount.
func asAmount(value interface{}) (model.Amount, error) {
	v, err := asBigInt(value)
	if err != nil {
		return "", err
	}
	if v.Sign() < 0 {
		return "", fmt.Errorf("negative amount %s", v.String())
	}
	return model.NewAmount(v), nil
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > math.MaxUint8 {
			return 0, fmt.Errorf("uint8 overflow: %s", v.String())
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func asUint16(value interface{}) (uint16, error) {
	switch v := value.(type) {
	case uint16:
		return v, nil
	case uint8:
		return uint16(v), nil
	default:
		return 0, fmt.Errorf("unsupported uint16 type %T", value)
	}
}

func asUint64(value interface{}) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("unsupported uint64 type %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	v, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("unsupported bool type %T", value)
	}
	return v, nil
}

func asBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case [32]byte:
		return append([]byte(nil), v[:]...), nil
	default:
		return nil, fmt.Errorf("unsupported bytes type %T", value)
	}
}

// asTime reads a uint64 unix timestamp.
func asTime(value interface{}) (time.Time, error) {
	secs, err := asUint64(value)
	if err != nil {
		return time.Time{}, err
	}
	if secs > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("timestamp out of range: %d", secs)
	}
	return time.Unix(int64(secs), 0).UTC(), nil
}

func unixTime(secs int64) time.Time {
	return time.Unix(secs, 0).UTC()
}
