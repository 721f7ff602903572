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
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/columnkit/cast"
)

func TestCastFromDictionary(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	dt := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int16, ValueType: arrow.BinaryTypes.String}
	dict := fromJSON(t, mem, dt.ValueType, `["7", "42", "oops"]`)
	indices := fromJSON(t, mem, dt.IndexType, `[0, 1, null, 2, 1]`)
	src := array.NewDictionaryArray(dt, indices, dict)
	indices.Release()
	dict.Release()
	defer src.Release()

	// Decoding to the value type expands the indices.
	out, err := cast.Cast(ctx, src, arrow.BinaryTypes.String)
	require.NoError(t, err)
	want := fromJSON(t, mem, arrow.BinaryTypes.String, `["7", "42", null, "oops", "42"]`)
	assert.True(t, array.Equal(want, out))
	want.Release()
	out.Release()

	// Decoding through a value cast runs the cast once per dictionary
	// entry, with per-value failures nullifying as usual.
	nums, err := cast.Cast(ctx, src, arrow.PrimitiveTypes.Int32)
	require.NoError(t, err)
	wantNums := fromJSON(t, mem, arrow.PrimitiveTypes.Int32, `[7, 42, null, null, 42]`)
	assert.True(t, array.Equal(wantNums, nums))
	wantNums.Release()
	nums.Release()
}

func TestCastToDictionary(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	src := fromJSON(t, mem, arrow.BinaryTypes.String, `["a", "b", "a", null, "a"]`)
	defer src.Release()

	dt := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int8, ValueType: arrow.BinaryTypes.String}
	out, err := cast.Cast(ctx, src, dt)
	require.NoError(t, err)
	defer out.Release()

	enc := out.(*array.Dictionary)
	assert.Equal(t, 2, enc.Dictionary().Len())
	assert.Equal(t, 5, enc.Len())
	assert.True(t, enc.IsNull(3))

	back, err := cast.Cast(ctx, out, arrow.BinaryTypes.String)
	require.NoError(t, err)
	defer back.Release()
	assert.True(t, array.Equal(src, back))
}

func TestCastDictionaryReKey(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	wide := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	narrow := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int8, ValueType: arrow.BinaryTypes.String}

	values := `[`
	indices := `[`
	for i := 0; i < 200; i++ {
		if i > 0 {
			values += ", "
			indices += ", "
		}
		values += fmt.Sprintf("%q", fmt.Sprintf("v%03d", i))
		indices += fmt.Sprintf("%d", i)
	}
	values += `]`
	indices += `]`

	dict := fromJSON(t, mem, wide.ValueType, values)
	idx := fromJSON(t, mem, wide.IndexType, indices)
	src := array.NewDictionaryArray(wide, idx, dict)
	idx.Release()
	dict.Release()
	defer src.Release()

	// Indices 128 through 199 do not fit int8; the cast reports how
	// many were lost rather than silently nulling them.
	_, err := cast.Cast(ctx, src, narrow)
	require.Error(t, err)
	assert.ErrorIs(t, err, arrow.ErrInvalid)
	assert.Contains(t, err.Error(), "72 dictionary indices")

	// A wider target re-keys without decoding.
	wider := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int64, ValueType: arrow.BinaryTypes.String}
	out, err := cast.Cast(ctx, src, wider)
	require.NoError(t, err)
	defer out.Release()
	enc := out.(*array.Dictionary)
	assert.Equal(t, 200, enc.Dictionary().Len())
	assert.Equal(t, int64(199), enc.Indices().(*array.Int64).Value(199))
}

func TestCastListChild(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	src := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Int32),
		`[[1, 2], null, [], [70000, null, 3]]`)
	defer src.Release()

	// Element overflow nullifies the element, not the list; list
	// shape and list-level nulls are untouched.
	out, err := cast.Cast(ctx, src, arrow.ListOf(arrow.PrimitiveTypes.Uint16))
	require.NoError(t, err)
	defer out.Release()

	want := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Uint16),
		`[[1, 2], null, [], [null, null, 3]]`)
	defer want.Release()
	assert.True(t, array.Equal(want, out))
}

func TestCastListOffsetWidths(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	checkCast(t, ctx,
		fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Int32), `[[1], null, [2, 3]]`),
		fromJSON(t, mem, arrow.LargeListOf(arrow.PrimitiveTypes.Int32), `[[1], null, [2, 3]]`),
		cast.UnsafeCastOptions())

	checkCast(t, ctx,
		fromJSON(t, mem, arrow.LargeListOf(arrow.PrimitiveTypes.Int32), `[[1], null, [2, 3]]`),
		fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Int32), `[[1], null, [2, 3]]`),
		cast.UnsafeCastOptions())

	// A width change never re-types the elements.
	assert.False(t, cast.CanCast(
		arrow.ListOf(arrow.PrimitiveTypes.Int32),
		arrow.LargeListOf(arrow.PrimitiveTypes.Int64)))
}

func TestCastListToString(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	src := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Int32),
		`[[1, 2], [], [3, null], null]`)
	defer src.Release()

	out, err := cast.Cast(ctx, src, arrow.BinaryTypes.String)
	require.NoError(t, err)
	defer out.Release()

	got := out.(*array.String)
	assert.Equal(t, "[1, 2]", got.Value(0))
	assert.Equal(t, "[]", got.Value(1))
	assert.Equal(t, "[3, null]", got.Value(2))
	assert.True(t, got.IsNull(3))
}

func TestCastPrimitiveToList(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	// Each row wraps into a one-element list; source nulls become
	// null elements inside non-null lists.
	checkCast(t, ctx,
		fromJSON(t, mem, arrow.PrimitiveTypes.Int32, `[1, null, 3]`),
		fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Int64), `[[1], [null], [3]]`),
		cast.UnsafeCastOptions())
}

func TestCastSlicedList(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	// The raw offsets buffer spans the whole array; the slice window
	// must be cut out and rebased, not copied verbatim.
	whole := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Int32), `[[1], [2, 3], null, [4]]`)
	defer whole.Release()
	src := array.NewSlice(whole, 1, 4)
	defer src.Release()

	out, err := cast.Cast(ctx, src, arrow.LargeListOf(arrow.PrimitiveTypes.Int32))
	require.NoError(t, err)
	defer out.Release()

	want := fromJSON(t, mem, arrow.LargeListOf(arrow.PrimitiveTypes.Int32), `[[2, 3], null, [4]]`)
	defer want.Release()
	assert.True(t, array.Equal(want, out))

	wholeL := fromJSON(t, mem, arrow.LargeListOf(arrow.PrimitiveTypes.Int32), `[[1], [2, 3], null, [4]]`)
	defer wholeL.Release()
	srcL := array.NewSlice(wholeL, 1, 4)
	defer srcL.Release()

	narrow, err := cast.Cast(ctx, srcL, arrow.ListOf(arrow.PrimitiveTypes.Int32))
	require.NoError(t, err)
	defer narrow.Release()

	wantNarrow := fromJSON(t, mem, arrow.ListOf(arrow.PrimitiveTypes.Int32), `[[2, 3], null, [4]]`)
	defer wantNarrow.Release()
	assert.True(t, array.Equal(wantNarrow, narrow))
}

func TestCastDictionaryToInterval(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	ctx := castCtx(mem)

	// Month-day-nano values take a decode path of their own; index
	// nulls and unparseable entries both come out null.
	dt := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	dict := fromJSON(t, mem, dt.ValueType, `["1 month 2 days", "3 nanoseconds", "oops"]`)
	indices := fromJSON(t, mem, dt.IndexType, `[2, 0, null, 1]`)
	src := array.NewDictionaryArray(dt, indices, dict)
	indices.Release()
	dict.Release()
	defer src.Release()

	out, err := cast.Cast(ctx, src, arrow.FixedWidthTypes.MonthDayNanoInterval)
	require.NoError(t, err)
	defer out.Release()
	require.True(t, arrow.TypeEqual(arrow.FixedWidthTypes.MonthDayNanoInterval, out.DataType()))

	got := out.(*array.MonthDayNanoInterval)
	assert.True(t, got.IsNull(0))
	assert.Equal(t, arrow.MonthDayNanoInterval{Months: 1, Days: 2}, got.Value(1))
	assert.True(t, got.IsNull(2))
	assert.Equal(t, arrow.MonthDayNanoInterval{Nanoseconds: 3}, got.Value(3))
}
