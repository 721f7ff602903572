// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cast

import (
	"context"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/decimal256"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

const (
	maxDecimal128Precision = 38
	maxDecimal256Precision = 76
)

var decimalTypeIDs = []arrow.Type{arrow.DECIMAL128, arrow.DECIMAL256}

func addDecimalCasts() {
	for _, from := range decimalTypeIDs {
		for _, to := range decimalTypeIDs {
			addCast(from, to, castDecimalToDecimal)
		}
		for _, num := range numericTypeIDs {
			if num == arrow.FLOAT16 {
				continue
			}
			addCast(from, num, castDecimalToNumber)
			addCast(num, from, castNumberToDecimal)
		}
		addCast(from, arrow.STRING, castToString)
		addCast(from, arrow.LARGE_STRING, castToString)
		addCast(arrow.STRING, from, castStringToDecimal)
		addCast(arrow.LARGE_STRING, from, castStringToDecimal)
	}
}

var (
	pow10Mu    sync.Mutex
	pow10Cache []*big.Int
)

// bigPow10 returns 10^n for n >= 0. The returned value is shared and
// must not be mutated.
func bigPow10(n int32) *big.Int {
	pow10Mu.Lock()
	defer pow10Mu.Unlock()
	for int32(len(pow10Cache)) <= n {
		if len(pow10Cache) == 0 {
			pow10Cache = append(pow10Cache, big.NewInt(1))
			continue
		}
		next := new(big.Int).Mul(pow10Cache[len(pow10Cache)-1], big.NewInt(10))
		pow10Cache = append(pow10Cache, next)
	}
	return pow10Cache[n]
}

// rescaleBig re-expresses the scaled integer v from inScale to
// outScale. Reducing the scale divides by a power of ten and rounds
// half away from zero; increasing it multiplies exactly.
func rescaleBig(v *big.Int, inScale, outScale int32) *big.Int {
	switch {
	case outScale == inScale:
		return new(big.Int).Set(v)
	case outScale > inScale:
		return new(big.Int).Mul(v, bigPow10(outScale-inScale))
	default:
		div := bigPow10(inScale - outScale)
		q, r := new(big.Int).QuoRem(v, div, new(big.Int))
		r.Abs(r).Lsh(r, 1)
		if r.Cmp(div) >= 0 {
			if v.Sign() < 0 {
				q.Sub(q, big.NewInt(1))
			} else {
				q.Add(q, big.NewInt(1))
			}
		}
		return q
	}
}

func fitsPrecision(v *big.Int, precision int32) bool {
	return v.CmpAbs(bigPow10(precision)) < 0
}

func decimalParams(dt arrow.DataType) (precision, scale, maxPrecision int32) {
	switch dt := dt.(type) {
	case *arrow.Decimal128Type:
		return dt.Precision, dt.Scale, maxDecimal128Precision
	case *arrow.Decimal256Type:
		return dt.Precision, dt.Scale, maxDecimal256Precision
	}
	return 0, 0, 0
}

// buildDecimal materializes one big integer into the target decimal
// representation, verifying the precision bound first.
func buildDecimal(v *big.Int, target arrow.DataType, display string) (any, error) {
	switch dt := target.(type) {
	case *arrow.Decimal128Type:
		if !fitsPrecision(v, dt.Precision) {
			return nil, errOutOfRange(display, target)
		}
		return decimal128.FromBigInt(v), nil
	case *arrow.Decimal256Type:
		if !fitsPrecision(v, dt.Precision) {
			return nil, errOutOfRange(display, target)
		}
		return decimal256.FromBigInt(v), nil
	}
	return nil, errInvalidParam("%s is not a decimal type", target)
}

// decimalAppender abstracts the two decimal builders behind one
// big.Int append surface.
type decimalAppender struct {
	bldr   array.Builder
	target arrow.DataType
}

func newDecimalAppender(mem memory.Allocator, target arrow.DataType) (*decimalAppender, error) {
	switch dt := target.(type) {
	case *arrow.Decimal128Type:
		return &decimalAppender{bldr: array.NewDecimal128Builder(mem, dt), target: target}, nil
	case *arrow.Decimal256Type:
		return &decimalAppender{bldr: array.NewDecimal256Builder(mem, dt), target: target}, nil
	}
	return nil, errInvalidParam("%s is not a decimal type", target)
}

func (d *decimalAppender) Append(v *big.Int, display string) error {
	num, err := buildDecimal(v, d.target, display)
	if err != nil {
		return err
	}
	switch b := d.bldr.(type) {
	case *array.Decimal128Builder:
		b.Append(num.(decimal128.Num))
	case *array.Decimal256Builder:
		b.Append(num.(decimal256.Num))
	}
	return nil
}

func (d *decimalAppender) AppendNull() { d.bldr.AppendNull() }

func (d *decimalAppender) NewArray() arrow.Array { return d.bldr.NewArray() }

func (d *decimalAppender) Release() { d.bldr.Release() }

// decimalAt returns an accessor producing each value of a decimal
// array as a big integer, alongside the input scale.
func decimalAt(arr arrow.Array) (func(i int) *big.Int, int32, error) {
	switch src := arr.(type) {
	case *array.Decimal128:
		return func(i int) *big.Int { return src.Value(i).BigInt() }, src.DataType().(*arrow.Decimal128Type).Scale, nil
	case *array.Decimal256:
		return func(i int) *big.Int { return src.Value(i).BigInt() }, src.DataType().(*arrow.Decimal256Type).Scale, nil
	}
	return nil, 0, errBadKernelInput(arr, "decimal")
}

func castDecimalToDecimal(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	valueAt, inScale, err := decimalAt(arr)
	if err != nil {
		return nil, err
	}
	_, outScale, _ := decimalParams(target)

	out, err := newDecimalAppender(allocator(ctx), target)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			out.AppendNull()
			continue
		}
		rescaled := rescaleBig(valueAt(i), inScale, outScale)
		if err := out.Append(rescaled, arr.ValueStr(i)); err != nil {
			if opts.Safe {
				out.AppendNull()
				continue
			}
			return nil, err
		}
	}
	return out.NewArray(), nil
}

func castDecimalToNumber(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	valueAt, inScale, err := decimalAt(arr)
	if err != nil {
		return nil, err
	}
	mem := allocator(ctx)

	switch target.ID() {
	case arrow.FLOAT32, arrow.FLOAT64:
		return castDecimalToFloat(mem, arr, target, opts)
	}

	// Integer targets drop fractional digits by truncation toward
	// zero, then range-check the narrowing.
	toInt := func(i int) (*big.Int, error) {
		v := valueAt(i)
		switch {
		case inScale == 0:
			return v, nil
		case inScale > 0:
			return new(big.Int).Quo(v, bigPow10(inScale)), nil
		default:
			return new(big.Int).Mul(v, bigPow10(-inScale)), nil
		}
	}

	switch target.ID() {
	case arrow.INT8:
		return castDecimalToInt[int8](mem, arr, target, opts, toInt)
	case arrow.INT16:
		return castDecimalToInt[int16](mem, arr, target, opts, toInt)
	case arrow.INT32:
		return castDecimalToInt[int32](mem, arr, target, opts, toInt)
	case arrow.INT64:
		return castDecimalToInt[int64](mem, arr, target, opts, toInt)
	case arrow.UINT8:
		return castDecimalToUint[uint8](mem, arr, target, opts, toInt)
	case arrow.UINT16:
		return castDecimalToUint[uint16](mem, arr, target, opts, toInt)
	case arrow.UINT32:
		return castDecimalToUint[uint32](mem, arr, target, opts, toInt)
	case arrow.UINT64:
		return castDecimalToUint[uint64](mem, arr, target, opts, toInt)
	}
	return nil, errCastNotSupported(arr.DataType(), target)
}

func castDecimalToInt[O intValue](mem memory.Allocator, src arrow.Array, target arrow.DataType, opts *CastOptions, at func(i int) (*big.Int, error)) (arrow.Array, error) {
	return castPrimitiveByIndex(mem, src, target, opts, func(i int) (O, error) {
		v, err := at(i)
		if err != nil {
			return 0, err
		}
		if !v.IsInt64() {
			return 0, errOutOfRange(src.ValueStr(i), target)
		}
		o, err := convertNumeric[int64, O](v.Int64(), target)
		if err != nil {
			return 0, errOutOfRange(src.ValueStr(i), target)
		}
		return o, nil
	})
}

func castDecimalToUint[O uintValue](mem memory.Allocator, src arrow.Array, target arrow.DataType, opts *CastOptions, at func(i int) (*big.Int, error)) (arrow.Array, error) {
	return castPrimitiveByIndex(mem, src, target, opts, func(i int) (O, error) {
		v, err := at(i)
		if err != nil {
			return 0, err
		}
		if v.Sign() < 0 || !v.IsUint64() {
			return 0, errOutOfRange(src.ValueStr(i), target)
		}
		o, err := convertNumeric[uint64, O](v.Uint64(), target)
		if err != nil {
			return 0, errOutOfRange(src.ValueStr(i), target)
		}
		return o, nil
	})
}

func castDecimalToFloat(mem memory.Allocator, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	var floatAt func(i int) float64
	switch src := arr.(type) {
	case *array.Decimal128:
		scale := src.DataType().(*arrow.Decimal128Type).Scale
		floatAt = func(i int) float64 { return src.Value(i).ToFloat64(scale) }
	case *array.Decimal256:
		scale := src.DataType().(*arrow.Decimal256Type).Scale
		floatAt = func(i int) float64 { return src.Value(i).ToFloat64(scale) }
	default:
		return nil, errBadKernelInput(arr, "decimal")
	}

	if target.ID() == arrow.FLOAT32 {
		return castPrimitiveByIndex(mem, arr, target, opts, func(i int) (float32, error) {
			return float32(floatAt(i)), nil
		})
	}
	return castPrimitiveByIndex(mem, arr, target, opts, func(i int) (float64, error) {
		return floatAt(i), nil
	})
}

func castNumberToDecimal(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	_, outScale, _ := decimalParams(target)
	out, err := newDecimalAppender(allocator(ctx), target)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	var bigAt func(i int) (*big.Int, error)
	switch src := arr.(type) {
	case *array.Int8:
		bigAt = func(i int) (*big.Int, error) { return rescaleBig(big.NewInt(int64(src.Value(i))), 0, outScale), nil }
	case *array.Int16:
		bigAt = func(i int) (*big.Int, error) { return rescaleBig(big.NewInt(int64(src.Value(i))), 0, outScale), nil }
	case *array.Int32:
		bigAt = func(i int) (*big.Int, error) { return rescaleBig(big.NewInt(int64(src.Value(i))), 0, outScale), nil }
	case *array.Int64:
		bigAt = func(i int) (*big.Int, error) { return rescaleBig(big.NewInt(src.Value(i)), 0, outScale), nil }
	case *array.Uint8:
		bigAt = func(i int) (*big.Int, error) { return rescaleBig(big.NewInt(int64(src.Value(i))), 0, outScale), nil }
	case *array.Uint16:
		bigAt = func(i int) (*big.Int, error) { return rescaleBig(big.NewInt(int64(src.Value(i))), 0, outScale), nil }
	case *array.Uint32:
		bigAt = func(i int) (*big.Int, error) { return rescaleBig(big.NewInt(int64(src.Value(i))), 0, outScale), nil }
	case *array.Uint64:
		bigAt = func(i int) (*big.Int, error) {
			return rescaleBig(new(big.Int).SetUint64(src.Value(i)), 0, outScale), nil
		}
	case *array.Float32:
		bigAt = func(i int) (*big.Int, error) { return floatToScaledBig(float64(src.Value(i)), outScale, target) }
	case *array.Float64:
		bigAt = func(i int) (*big.Int, error) { return floatToScaledBig(src.Value(i), outScale, target) }
	default:
		return nil, errBadKernelInput(arr, "numeric")
	}

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			out.AppendNull()
			continue
		}
		v, err := bigAt(i)
		if err == nil {
			err = out.Append(v, arr.ValueStr(i))
		}
		if err != nil {
			if opts.Safe {
				out.AppendNull()
				continue
			}
			return nil, err
		}
	}
	return out.NewArray(), nil
}

// floatToScaledBig multiplies by 10^scale in floating point and rounds
// half away from zero. Rounding applies to the actual double value,
// not its shortest printed form.
func floatToScaledBig(v float64, scale int32, target arrow.DataType) (*big.Int, error) {
	scaled := v * math.Pow10(int(scale))
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) {
		return nil, errOutOfRange(v, target)
	}
	rounded := math.Round(scaled)
	bi, _ := big.NewFloat(rounded).Int(nil)
	return bi, nil
}

func castStringToDecimal(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	prec, outScale, maxPrec := decimalParams(target)
	switch {
	case outScale < 0:
		return nil, errInvalidParam("cannot cast string to decimal with negative scale %d", outScale)
	case prec < 1 || prec > maxPrec:
		return nil, errInvalidParam("cannot cast string to decimal with precision %d (maximum %d)", prec, maxPrec)
	case outScale > maxPrec:
		return nil, errInvalidParam("cannot cast string to decimal: scale %d exceeds maximum precision %d", outScale, maxPrec)
	}

	stringAt, err := stringValueAt(arr)
	if err != nil {
		return nil, err
	}
	out, err := newDecimalAppender(allocator(ctx), target)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			out.AppendNull()
			continue
		}
		s := stringAt(i)
		v, err := parseDecimalString(s, outScale, target)
		if err == nil {
			err = out.Append(v, s)
		}
		if err != nil {
			if opts.Safe {
				out.AppendNull()
				continue
			}
			return nil, err
		}
	}
	return out.NewArray(), nil
}

// parseDecimalString converts a plain decimal literal into a scaled
// big integer, using only wide-integer arithmetic so binary fractions
// never leak in. The fractional part is rounded half away from zero
// to the target scale.
func parseDecimalString(s string, scale int32, target arrow.DataType) (*big.Int, error) {
	rest := s
	neg := false
	switch {
	case strings.HasPrefix(rest, "-"):
		neg = true
		rest = rest[1:]
	case strings.HasPrefix(rest, "+"):
		rest = rest[1:]
	}

	intPart, fracPart := rest, ""
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		intPart, fracPart = rest[:dot], rest[dot+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return nil, errParse(s, target)
		}
	}
	if intPart == "" && fracPart == "" {
		return nil, errParse(s, target)
	}
	if !allDigits(intPart) || !allDigits(fracPart) {
		return nil, errParse(s, target)
	}

	value := new(big.Int)
	if intPart != "" {
		if _, ok := value.SetString(intPart, 10); !ok {
			return nil, errParse(s, target)
		}
	}
	value.Mul(value, bigPow10(scale))

	if fracPart != "" {
		roundUp := false
		if int32(len(fracPart)) > scale {
			roundUp = fracPart[scale] >= '5'
			fracPart = fracPart[:scale]
		}
		frac := new(big.Int)
		if fracPart != "" {
			if _, ok := frac.SetString(fracPart, 10); !ok {
				return nil, errParse(s, target)
			}
		}
		frac.Mul(frac, bigPow10(scale-int32(len(fracPart))))
		if roundUp {
			frac.Add(frac, big.NewInt(1))
		}
		value.Add(value, frac)
	}

	if neg {
		value.Neg(value)
	}
	return value, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
