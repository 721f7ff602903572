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
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var numericTypeIDs = []arrow.Type{
	arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
	arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
	arrow.FLOAT32, arrow.FLOAT64, arrow.FLOAT16,
}

func addNumericCasts() {
	for _, from := range numericTypeIDs {
		for _, to := range numericTypeIDs {
			addCast(from, to, castNumber)
		}
		addCast(arrow.BOOL, from, castBoolToNumber)
		addCast(from, arrow.BOOL, castNumberToBool)
	}
}

// convertNumeric performs a single checked numeric conversion.
// Conversions into floating point always succeed; float to integer
// truncates toward zero and range-checks against exact power-of-two
// bounds; integer narrowing is verified by round-tripping the result.
func convertNumeric[I, O numericValue](v I, target arrow.DataType) (O, error) {
	var (
		iZero I
		oZero O
	)
	switch {
	case O(1)/O(2) != oZero: // float target
		return O(v), nil
	case I(1)/I(2) != iZero: // float source, integer target
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return oZero, errOutOfRange(v, target)
		}
		f = math.Trunc(f)
		lo, hi := intRangeAsFloat[O]()
		if f < lo || f >= hi {
			return oZero, errOutOfRange(v, target)
		}
		return O(f), nil
	default: // integer to integer
		o := O(v)
		if I(o) != v || (o < oZero) != (v < iZero) {
			return oZero, errOutOfRange(v, target)
		}
		return o, nil
	}
}

// intRangeAsFloat returns the representable range of the integer type
// O as floats: inclusive lower bound and exclusive upper bound, both
// exact powers of two.
func intRangeAsFloat[O numericValue]() (lo, hi float64) {
	var zero O
	bits := int(unsafe.Sizeof(zero)) * 8
	if zero-1 < zero { // signed
		hi = math.Ldexp(1, bits-1)
		return -hi, hi
	}
	return 0, math.Ldexp(1, bits)
}

func castNumber(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	mem := allocator(ctx)
	switch src := arr.(type) {
	case *array.Int8:
		return castFromNumber(mem, arr, src.Int8Values(), target, opts)
	case *array.Int16:
		return castFromNumber(mem, arr, src.Int16Values(), target, opts)
	case *array.Int32:
		return castFromNumber(mem, arr, src.Int32Values(), target, opts)
	case *array.Int64:
		return castFromNumber(mem, arr, src.Int64Values(), target, opts)
	case *array.Uint8:
		return castFromNumber(mem, arr, src.Uint8Values(), target, opts)
	case *array.Uint16:
		return castFromNumber(mem, arr, src.Uint16Values(), target, opts)
	case *array.Uint32:
		return castFromNumber(mem, arr, src.Uint32Values(), target, opts)
	case *array.Uint64:
		return castFromNumber(mem, arr, src.Uint64Values(), target, opts)
	case *array.Float32:
		return castFromNumber(mem, arr, src.Float32Values(), target, opts)
	case *array.Float64:
		return castFromNumber(mem, arr, src.Float64Values(), target, opts)
	case *array.Float16:
		return castFromFloat16(mem, arr, src.Values(), target, opts)
	}
	return nil, errBadKernelInput(arr, "numeric")
}

func castFromNumber[I numericValue](mem memory.Allocator, src arrow.Array, in []I, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	switch target.ID() {
	case arrow.INT8:
		return castPrimitive(mem, src, in, target, opts, func(v I) (int8, error) { return convertNumeric[I, int8](v, target) })
	case arrow.INT16:
		return castPrimitive(mem, src, in, target, opts, func(v I) (int16, error) { return convertNumeric[I, int16](v, target) })
	case arrow.INT32:
		return castPrimitive(mem, src, in, target, opts, func(v I) (int32, error) { return convertNumeric[I, int32](v, target) })
	case arrow.INT64:
		return castPrimitive(mem, src, in, target, opts, func(v I) (int64, error) { return convertNumeric[I, int64](v, target) })
	case arrow.UINT8:
		return castPrimitive(mem, src, in, target, opts, func(v I) (uint8, error) { return convertNumeric[I, uint8](v, target) })
	case arrow.UINT16:
		return castPrimitive(mem, src, in, target, opts, func(v I) (uint16, error) { return convertNumeric[I, uint16](v, target) })
	case arrow.UINT32:
		return castPrimitive(mem, src, in, target, opts, func(v I) (uint32, error) { return convertNumeric[I, uint32](v, target) })
	case arrow.UINT64:
		return castPrimitive(mem, src, in, target, opts, func(v I) (uint64, error) { return convertNumeric[I, uint64](v, target) })
	case arrow.FLOAT32:
		return castPrimitive(mem, src, in, target, opts, func(v I) (float32, error) { return convertNumeric[I, float32](v, target) })
	case arrow.FLOAT64:
		return castPrimitive(mem, src, in, target, opts, func(v I) (float64, error) { return convertNumeric[I, float64](v, target) })
	case arrow.FLOAT16:
		return castPrimitive(mem, src, in, target, opts, func(v I) (float16.Num, error) {
			return float16.New(float32(v)), nil
		})
	}
	return nil, errCastNotSupported(src.DataType(), target)
}

func castFromFloat16(mem memory.Allocator, src arrow.Array, in []float16.Num, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	switch target.ID() {
	case arrow.INT8:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (int8, error) { return convertNumeric[float32, int8](v.Float32(), target) })
	case arrow.INT16:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (int16, error) { return convertNumeric[float32, int16](v.Float32(), target) })
	case arrow.INT32:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (int32, error) { return convertNumeric[float32, int32](v.Float32(), target) })
	case arrow.INT64:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (int64, error) { return convertNumeric[float32, int64](v.Float32(), target) })
	case arrow.UINT8:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (uint8, error) { return convertNumeric[float32, uint8](v.Float32(), target) })
	case arrow.UINT16:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (uint16, error) { return convertNumeric[float32, uint16](v.Float32(), target) })
	case arrow.UINT32:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (uint32, error) { return convertNumeric[float32, uint32](v.Float32(), target) })
	case arrow.UINT64:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (uint64, error) { return convertNumeric[float32, uint64](v.Float32(), target) })
	case arrow.FLOAT32:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (float32, error) { return v.Float32(), nil })
	case arrow.FLOAT64:
		return castPrimitive(mem, src, in, target, opts, func(v float16.Num) (float64, error) { return float64(v.Float32()), nil })
	}
	return nil, errCastNotSupported(src.DataType(), target)
}

func castBoolToNumber(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	src, ok := arr.(*array.Boolean)
	if !ok {
		return nil, errBadKernelInput(arr, "boolean")
	}
	mem := allocator(ctx)
	switch target.ID() {
	case arrow.INT8:
		return buildFromBool[int8](mem, src, target), nil
	case arrow.INT16:
		return buildFromBool[int16](mem, src, target), nil
	case arrow.INT32:
		return buildFromBool[int32](mem, src, target), nil
	case arrow.INT64:
		return buildFromBool[int64](mem, src, target), nil
	case arrow.UINT8:
		return buildFromBool[uint8](mem, src, target), nil
	case arrow.UINT16:
		return buildFromBool[uint16](mem, src, target), nil
	case arrow.UINT32:
		return buildFromBool[uint32](mem, src, target), nil
	case arrow.UINT64:
		return buildFromBool[uint64](mem, src, target), nil
	case arrow.FLOAT32:
		return buildFromBool[float32](mem, src, target), nil
	case arrow.FLOAT64:
		return buildFromBool[float64](mem, src, target), nil
	case arrow.FLOAT16:
		return buildFromBoolF16(mem, src, target), nil
	}
	return nil, errCastNotSupported(arr.DataType(), target)
}

// buildFromBool maps true to one and false to the type's zero value.
func buildFromBool[O numericValue](mem memory.Allocator, src *array.Boolean, dt arrow.DataType) arrow.Array {
	n := src.Len()
	p := newPrimitiveCtx(mem, src)
	buf, out := allocValues[O](mem, n)
	for i := 0; i < n; i++ {
		if src.IsValid(i) && src.Value(i) {
			out[i] = 1
		}
	}
	return p.finish(dt, n, buf)
}

func buildFromBoolF16(mem memory.Allocator, src *array.Boolean, dt arrow.DataType) arrow.Array {
	n := src.Len()
	p := newPrimitiveCtx(mem, src)
	buf, out := allocValues[float16.Num](mem, n)
	one := float16.New(1)
	for i := 0; i < n; i++ {
		if src.IsValid(i) && src.Value(i) {
			out[i] = one
		}
	}
	return p.finish(dt, n, buf)
}

func castNumberToBool(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	mem := allocator(ctx)
	bldr := array.NewBooleanBuilder(mem)
	defer bldr.Release()
	bldr.Reserve(arr.Len())

	appendAll := func(value func(i int) bool) {
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				bldr.AppendNull()
				continue
			}
			bldr.Append(value(i))
		}
	}

	switch src := arr.(type) {
	case *array.Int8:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Int16:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Int32:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Int64:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Uint8:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Uint16:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Uint32:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Uint64:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Float32:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Float64:
		appendAll(func(i int) bool { return src.Value(i) != 0 })
	case *array.Float16:
		appendAll(func(i int) bool { return src.Value(i).Float32() != 0 })
	default:
		return nil, errBadKernelInput(arr, "numeric")
	}
	return bldr.NewArray(), nil
}
