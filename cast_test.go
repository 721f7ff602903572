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

package cast_test

import (
	"context"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/columnkit/cast"
)

func castCtx(mem memory.Allocator) context.Context {
	return compute.WithAllocator(context.Background(), mem)
}

func fromJSON(t *testing.T, mem memory.Allocator, dt arrow.DataType, data string) arrow.Array {
	t.Helper()
	arr, _, err := array.FromJSON(mem, dt, strings.NewReader(data))
	require.NoError(t, err)
	return arr
}

// checkCast converts src and compares the result against want,
// releasing both output and fixtures.
func checkCast(t *testing.T, ctx context.Context, src arrow.Array, want arrow.Array, opts *cast.CastOptions) {
	t.Helper()
	defer src.Release()
	defer want.Release()
	out, err := cast.CastWithOptions(ctx, src, want.DataType(), opts)
	require.NoError(t, err)
	defer out.Release()
	assert.Truef(t, array.Equal(want, out), "got: %s, want: %s", out, want)
}

// typeRoster holds one instance of every castable type shape.
var typeRoster = []arrow.DataType{
	arrow.Null,
	arrow.FixedWidthTypes.Boolean,
	arrow.PrimitiveTypes.Int8,
	arrow.PrimitiveTypes.Int16,
	arrow.PrimitiveTypes.Int32,
	arrow.PrimitiveTypes.Int64,
	arrow.PrimitiveTypes.Uint8,
	arrow.PrimitiveTypes.Uint16,
	arrow.PrimitiveTypes.Uint32,
	arrow.PrimitiveTypes.Uint64,
	arrow.FixedWidthTypes.Float16,
	arrow.PrimitiveTypes.Float32,
	arrow.PrimitiveTypes.Float64,
	&arrow.Decimal128Type{Precision: 7, Scale: 3},
	&arrow.Decimal256Type{Precision: 40, Scale: 3},
	arrow.BinaryTypes.String,
	arrow.BinaryTypes.LargeString,
	arrow.BinaryTypes.Binary,
	arrow.BinaryTypes.LargeBinary,
	arrow.FixedWidthTypes.Date32,
	arrow.FixedWidthTypes.Date64,
	arrow.FixedWidthTypes.Time32s,
	arrow.FixedWidthTypes.Time32ms,
	arrow.FixedWidthTypes.Time64us,
	arrow.FixedWidthTypes.Time64ns,
	arrow.FixedWidthTypes.Timestamp_s,
	arrow.FixedWidthTypes.Timestamp_ms,
	arrow.FixedWidthTypes.Timestamp_us,
	arrow.FixedWidthTypes.Timestamp_ns,
	arrow.FixedWidthTypes.Duration_ms,
	arrow.FixedWidthTypes.Duration_ns,
	arrow.FixedWidthTypes.MonthInterval,
	arrow.FixedWidthTypes.DayTimeInterval,
	arrow.FixedWidthTypes.MonthDayNanoInterval,
	&arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String},
	arrow.ListOf(arrow.PrimitiveTypes.Int32),
	arrow.LargeListOf(arrow.PrimitiveTypes.Int32),
}

func rosterArrayOf(t *testing.T, mem memory.Allocator, dt arrow.DataType) arrow.Array {
	t.Helper()
	if dt, ok := dt.(*arrow.DictionaryType); ok {
		dict := fromJSON(t, mem, dt.ValueType, `["a", "b"]`)
		defer dict.Release()
		indices := array.MakeArrayOfNull(mem, dt.IndexType, 2)
		defer indices.Release()
		return array.NewDictionaryArray(dt, indices, dict)
	}
	return array.MakeArrayOfNull(mem, dt, 2)
}

// TestCanCastMatchesCast walks every ordered pair from the roster and
// checks that the legality predicate and the dispatcher agree: an
// accepted pair must dispatch to a kernel, and a rejected pair must
// fail with the unsupported-cast sentinel. All-null inputs keep the
// check independent of per-value conversion failures.
func TestCanCastMatchesCast(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	for _, from := range typeRoster {
		src := rosterArrayOf(t, mem, from)
		for _, to := range typeRoster {
			out, err := cast.Cast(ctx, src, to)
			if cast.CanCast(from, to) {
				require.NoErrorf(t, err, "cast %s -> %s", from, to)
				assert.Truef(t, arrow.TypeEqual(to, out.DataType()), "cast %s -> %s produced %s", from, to, out.DataType())
				assert.Equal(t, src.Len(), out.Len())
				out.Release()
			} else {
				require.Errorf(t, err, "cast %s -> %s succeeded but CanCast is false", from, to)
				assert.ErrorIsf(t, err, arrow.ErrNotImplemented, "cast %s -> %s: %s", from, to, err)
			}
		}
		src.Release()
	}
}

func TestCastIdentity(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	src := fromJSON(t, mem, arrow.PrimitiveTypes.Int32, `[1, 2, null, 4]`)
	defer src.Release()

	out, err := cast.Cast(ctx, src, arrow.PrimitiveTypes.Int32)
	require.NoError(t, err)
	defer out.Release()

	assert.True(t, array.Equal(src, out))
	// Identity casts share buffers rather than copying.
	assert.Same(t, src.Data().Buffers()[1], out.Data().Buffers()[1])
}

func TestCastFromNull(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	src := array.NewNull(4)
	defer src.Release()

	for _, to := range []arrow.DataType{
		arrow.PrimitiveTypes.Float64,
		arrow.BinaryTypes.String,
		arrow.ListOf(arrow.PrimitiveTypes.Int32),
	} {
		out, err := cast.Cast(ctx, src, to)
		require.NoError(t, err)
		assert.True(t, arrow.TypeEqual(to, out.DataType()))
		assert.Equal(t, 4, out.Len())
		assert.Equal(t, 4, out.NullN())
		out.Release()
	}
}

func TestCastNilOptions(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	// nil options behave like safe options.
	src := fromJSON(t, mem, arrow.PrimitiveTypes.Int32, `[1, 300]`)
	defer src.Release()
	out, err := cast.CastWithOptions(ctx, src, arrow.PrimitiveTypes.Int8, nil)
	require.NoError(t, err)
	defer out.Release()
	assert.True(t, out.IsValid(0))
	assert.True(t, out.IsNull(1))
}

func TestCastUnsupported(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	src := fromJSON(t, mem, arrow.FixedWidthTypes.Boolean, `[true]`)
	defer src.Release()

	assert.False(t, cast.CanCast(arrow.FixedWidthTypes.Boolean, arrow.FixedWidthTypes.Date32))
	_, err := cast.Cast(ctx, src, arrow.FixedWidthTypes.Date32)
	require.Error(t, err)
	assert.ErrorIs(t, err, arrow.ErrNotImplemented)
	assert.Contains(t, err.Error(), "casting from bool to date32")
}
