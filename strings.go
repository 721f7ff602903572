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
	"strconv"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var (
	stringTypeIDs     = []arrow.Type{arrow.STRING, arrow.LARGE_STRING}
	binaryLikeTypeIDs = []arrow.Type{arrow.STRING, arrow.LARGE_STRING, arrow.BINARY, arrow.LARGE_BINARY}
)

func addStringCasts() {
	for _, str := range stringTypeIDs {
		// String to numeric covers every primitive except Float16,
		// which has no parse path.
		for _, num := range numericTypeIDs {
			if num == arrow.FLOAT16 {
				continue
			}
			addCast(str, num, castStringToNumber)
			addCast(num, str, castToString)
		}
		addCast(arrow.FLOAT16, str, castToString)
		addCast(str, arrow.BOOL, castStringToBool)
		addCast(arrow.BOOL, str, castToString)

		addCast(str, arrow.DATE32, castStringToTemporal)
		addCast(str, arrow.DATE64, castStringToTemporal)
		addCast(str, arrow.TIME32, castStringToTemporal)
		addCast(str, arrow.TIME64, castStringToTemporal)
		addCast(str, arrow.TIMESTAMP, castStringToTemporal)
		addCast(str, arrow.INTERVAL_MONTHS, castStringToInterval)
		addCast(str, arrow.INTERVAL_DAY_TIME, castStringToInterval)
		addCast(str, arrow.INTERVAL_MONTH_DAY_NANO, castStringToInterval)
	}

	// Width changes and string/binary re-encodings all share the
	// variable-length byte kernel.
	for _, from := range binaryLikeTypeIDs {
		for _, to := range binaryLikeTypeIDs {
			if from == to {
				continue
			}
			addCast(from, to, castBinaryLike)
		}
	}
}

// stringBuilder is the surface shared by the two string builder widths.
type stringBuilder interface {
	array.Builder
	Append(string)
}

func newStringBuilderFor(mem memory.Allocator, target arrow.DataType) (stringBuilder, error) {
	switch target.ID() {
	case arrow.STRING:
		return array.NewStringBuilder(mem), nil
	case arrow.LARGE_STRING:
		return array.NewLargeStringBuilder(mem), nil
	}
	return nil, errInvalidParam("%s is not a string type", target)
}

func stringValueAt(arr arrow.Array) (func(i int) string, error) {
	switch src := arr.(type) {
	case *array.String:
		return src.Value, nil
	case *array.LargeString:
		return src.Value, nil
	}
	return nil, errBadKernelInput(arr, "string")
}

func bytesValueAt(arr arrow.Array) (func(i int) []byte, error) {
	switch src := arr.(type) {
	case *array.String:
		return func(i int) []byte { return []byte(src.Value(i)) }, nil
	case *array.LargeString:
		return func(i int) []byte { return []byte(src.Value(i)) }, nil
	case *array.Binary:
		return src.Value, nil
	case *array.LargeBinary:
		return src.Value, nil
	}
	return nil, errBadKernelInput(arr, "binary-like")
}

// castToString renders every value through the array's formatter. It
// cannot fail per value, so the safety flag is irrelevant.
func castToString(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	bldr, err := newStringBuilderFor(allocator(ctx), target)
	if err != nil {
		return nil, err
	}
	defer bldr.Release()
	bldr.Reserve(arr.Len())

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			bldr.AppendNull()
			continue
		}
		bldr.Append(arr.ValueStr(i))
	}
	return bldr.NewArray(), nil
}

func castStringToNumber(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	stringAt, err := stringValueAt(arr)
	if err != nil {
		return nil, err
	}
	mem := allocator(ctx)

	switch target.ID() {
	case arrow.INT8:
		return parseIntString[int8](mem, arr, target, opts, stringAt, 8)
	case arrow.INT16:
		return parseIntString[int16](mem, arr, target, opts, stringAt, 16)
	case arrow.INT32:
		return parseIntString[int32](mem, arr, target, opts, stringAt, 32)
	case arrow.INT64:
		return parseIntString[int64](mem, arr, target, opts, stringAt, 64)
	case arrow.UINT8:
		return parseUintString[uint8](mem, arr, target, opts, stringAt, 8)
	case arrow.UINT16:
		return parseUintString[uint16](mem, arr, target, opts, stringAt, 16)
	case arrow.UINT32:
		return parseUintString[uint32](mem, arr, target, opts, stringAt, 32)
	case arrow.UINT64:
		return parseUintString[uint64](mem, arr, target, opts, stringAt, 64)
	case arrow.FLOAT32:
		return castPrimitiveByIndex(mem, arr, target, opts, func(i int) (float32, error) {
			v, err := strconv.ParseFloat(stringAt(i), 32)
			if err != nil {
				return 0, errParse(stringAt(i), target)
			}
			return float32(v), nil
		})
	case arrow.FLOAT64:
		return castPrimitiveByIndex(mem, arr, target, opts, func(i int) (float64, error) {
			v, err := strconv.ParseFloat(stringAt(i), 64)
			if err != nil {
				return 0, errParse(stringAt(i), target)
			}
			return v, nil
		})
	}
	return nil, errCastNotSupported(arr.DataType(), target)
}

func parseIntString[O intValue](mem memory.Allocator, src arrow.Array, target arrow.DataType, opts *CastOptions, stringAt func(i int) string, bits int) (arrow.Array, error) {
	return castPrimitiveByIndex(mem, src, target, opts, func(i int) (O, error) {
		v, err := strconv.ParseInt(stringAt(i), 10, bits)
		if err != nil {
			return 0, errParse(stringAt(i), target)
		}
		return O(v), nil
	})
}

func parseUintString[O uintValue](mem memory.Allocator, src arrow.Array, target arrow.DataType, opts *CastOptions, stringAt func(i int) string, bits int) (arrow.Array, error) {
	return castPrimitiveByIndex(mem, src, target, opts, func(i int) (O, error) {
		v, err := strconv.ParseUint(stringAt(i), 10, bits)
		if err != nil {
			return 0, errParse(stringAt(i), target)
		}
		return O(v), nil
	})
}

func castStringToBool(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	stringAt, err := stringValueAt(arr)
	if err != nil {
		return nil, err
	}
	bldr := array.NewBooleanBuilder(allocator(ctx))
	defer bldr.Release()
	bldr.Reserve(arr.Len())

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			bldr.AppendNull()
			continue
		}
		v, err := strconv.ParseBool(stringAt(i))
		if err != nil {
			if opts.Safe {
				bldr.AppendNull()
				continue
			}
			return nil, errParse(stringAt(i), target)
		}
		bldr.Append(v)
	}
	return bldr.NewArray(), nil
}

// castBinaryLike re-encodes between the four variable-length byte
// layouts without copying the value bytes. The value buffer is always
// shared with the source; a width change copies the offsets over
// verbatim, so they are never rebased. Producing a string from binary
// validates UTF-8 per value, and narrowing the offset width verifies
// the end offset fits 32 bits.
func castBinaryLike(ctx context.Context, arr arrow.Array, target arrow.DataType, opts *CastOptions) (arrow.Array, error) {
	fromID, toID := arr.DataType().ID(), target.ID()
	wideFrom := fromID == arrow.LARGE_STRING || fromID == arrow.LARGE_BINARY
	wideTo := toID == arrow.LARGE_STRING || toID == arrow.LARGE_BINARY
	validate := (fromID == arrow.BINARY || fromID == arrow.LARGE_BINARY) &&
		(toID == arrow.STRING || toID == arrow.LARGE_STRING)

	data := arr.Data()
	mem := allocator(ctx)

	// Same offset width with no validation is a pure reinterpretation.
	if wideFrom == wideTo && !validate {
		out := array.NewData(target, arr.Len(), data.Buffers(), nil, arr.NullN(), data.Offset())
		defer out.Release()
		return array.MakeFromData(out), nil
	}

	nOff := arr.Len() + 1
	var offsets *memory.Buffer
	if wideFrom {
		raw := valuesOf[int64](data.Buffers()[1].Bytes(), data.Offset(), nOff)
		if wideTo {
			buf, out := allocValues[int64](mem, nOff)
			copy(out, raw)
			offsets = buf
		} else {
			if last := raw[nOff-1]; last > math.MaxInt32 {
				return nil, errInvalidParam("byte offset %d exceeds 32-bit offset capacity of %s", last, target)
			}
			buf, out := allocValues[int32](mem, nOff)
			for i, o := range raw {
				out[i] = int32(o)
			}
			offsets = buf
		}
	} else {
		raw := valuesOf[int32](data.Buffers()[1].Bytes(), data.Offset(), nOff)
		if wideTo {
			buf, out := allocValues[int64](mem, nOff)
			for i, o := range raw {
				out[i] = int64(o)
			}
			offsets = buf
		} else {
			buf, out := allocValues[int32](mem, nOff)
			copy(out, raw)
			offsets = buf
		}
	}
	defer offsets.Release()

	p := newPrimitiveCtx(mem, arr)
	if validate {
		bytesAt, err := bytesValueAt(arr)
		if err != nil {
			p.validity.Release()
			return nil, err
		}
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) || utf8.Valid(bytesAt(i)) {
				continue
			}
			if !opts.Safe {
				p.validity.Release()
				return nil, errInvalidParam("invalid UTF-8 sequence at index %d while casting to %s", i, target)
			}
			p.setNull(i)
		}
	}
	validity := p.validity
	if p.nulls == 0 {
		validity.Release()
		validity = nil
	}
	out := array.NewData(target, arr.Len(),
		[]*memory.Buffer{validity, offsets, data.Buffers()[2]}, nil, p.nulls, 0)
	defer out.Release()
	if validity != nil {
		validity.Release()
	}
	return array.MakeFromData(out), nil
}
