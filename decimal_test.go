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
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/suite"

	"github.com/columnkit/cast"
)

func dec128(p, s int32) *arrow.Decimal128Type {
	return &arrow.Decimal128Type{Precision: p, Scale: s}
}

func dec256(p, s int32) *arrow.Decimal256Type {
	return &arrow.Decimal256Type{Precision: p, Scale: s}
}

type DecimalCastSuite struct {
	suite.Suite

	mem *memory.CheckedAllocator
	ctx context.Context
}

func (s *DecimalCastSuite) SetupTest() {
	s.mem = memory.NewCheckedAllocator(memory.NewGoAllocator())
	s.ctx = castCtx(s.mem)
}

func (s *DecimalCastSuite) TearDownTest() {
	s.mem.AssertSize(s.T(), 0)
}

func (s *DecimalCastSuite) fromJSON(dt arrow.DataType, data string) arrow.Array {
	arr, _, err := array.FromJSON(s.mem, dt, strings.NewReader(data))
	s.Require().NoError(err)
	return arr
}

func (s *DecimalCastSuite) checkCast(src, want arrow.Array, opts *cast.CastOptions) {
	defer src.Release()
	defer want.Release()
	out, err := cast.CastWithOptions(s.ctx, src, want.DataType(), opts)
	s.Require().NoError(err)
	defer out.Release()
	s.Truef(array.Equal(want, out), "got: %s, want: %s", out, want)
}

func (s *DecimalCastSuite) TestStringRoundTrip() {
	s.checkCast(
		s.fromJSON(arrow.BinaryTypes.String, `["1123.454", "-1123.454", null, "0.001"]`),
		s.fromJSON(dec128(7, 3), `["1123.454", "-1123.454", null, "0.001"]`),
		cast.UnsafeCastOptions())

	s.checkCast(
		s.fromJSON(dec128(7, 3), `["1123.454", "-1123.454", null]`),
		s.fromJSON(arrow.BinaryTypes.String, `["1123.454", "-1123.454", null]`),
		cast.UnsafeCastOptions())
}

func (s *DecimalCastSuite) TestRescale() {
	// Upscaling pads with zeros.
	s.checkCast(
		s.fromJSON(dec128(7, 2), `["12.34", null]`),
		s.fromJSON(dec128(10, 5), `["12.34000", null]`),
		cast.UnsafeCastOptions())

	// Downscaling rounds half away from zero.
	s.checkCast(
		s.fromJSON(dec128(7, 3), `["1.234", "1.235", "-1.235", "1.236"]`),
		s.fromJSON(dec128(7, 2), `["1.23", "1.24", "-1.24", "1.24"]`),
		cast.UnsafeCastOptions())

	// Widening the storage preserves the value exactly.
	s.checkCast(
		s.fromJSON(dec128(7, 3), `["1123.454"]`),
		s.fromJSON(dec256(40, 10), `["1123.4540000000"]`),
		cast.UnsafeCastOptions())
}

func (s *DecimalCastSuite) TestPrecisionOverflow() {
	// 1123.454 needs five integral-plus-fractional digits at scale 2,
	// so precision 4 cannot hold it.
	s.checkCast(
		s.fromJSON(dec128(7, 3), `["1123.454", "1.234"]`),
		s.fromJSON(dec128(4, 2), `[null, "1.23"]`),
		cast.SafeCastOptions())

	src := s.fromJSON(dec128(7, 3), `["1123.454"]`)
	defer src.Release()
	_, err := cast.CastWithOptions(s.ctx, src, dec128(4, 2), cast.UnsafeCastOptions())
	s.Require().Error(err)
	s.ErrorIs(err, arrow.ErrInvalid)
}

func (s *DecimalCastSuite) TestFloatRounding() {
	// Rounding happens on the actual double value, not its printed
	// form: 0.0699999999 scales to 6.99999999 and rounds up, while
	// 0.0649999999 scales to 6.49999999 and rounds down.
	s.checkCast(
		s.fromJSON(arrow.PrimitiveTypes.Float64, `[0.0699999999, 0.0649999999, 0.065, -0.0699999999]`),
		s.fromJSON(dec128(18, 2), `["0.07", "0.06", "0.07", "-0.07"]`),
		cast.UnsafeCastOptions())

	// Non-finite doubles have no decimal representation.
	s.checkCast(
		s.fromJSON(arrow.PrimitiveTypes.Float64, `["NaN", "+Inf", 1.5]`),
		s.fromJSON(dec128(18, 2), `[null, null, "1.50"]`),
		cast.SafeCastOptions())
}

func (s *DecimalCastSuite) TestToFloat() {
	s.checkCast(
		s.fromJSON(dec128(7, 3), `["1123.454", "-0.5", null]`),
		s.fromJSON(arrow.PrimitiveTypes.Float64, `[1123.454, -0.5, null]`),
		cast.UnsafeCastOptions())
}

func (s *DecimalCastSuite) TestToInt() {
	// The fractional part truncates toward zero.
	s.checkCast(
		s.fromJSON(dec128(7, 3), `["1123.999", "-1123.999", null]`),
		s.fromJSON(arrow.PrimitiveTypes.Int32, `[1123, -1123, null]`),
		cast.UnsafeCastOptions())

	s.checkCast(
		s.fromJSON(dec128(7, 3), `["1123.454", "-1.000"]`),
		s.fromJSON(arrow.PrimitiveTypes.Uint8, `[null, null]`),
		cast.SafeCastOptions())
}

func (s *DecimalCastSuite) TestFromInt() {
	s.checkCast(
		s.fromJSON(arrow.PrimitiveTypes.Int64, `[1123, -5, null]`),
		s.fromJSON(dec128(10, 2), `["1123.00", "-5.00", null]`),
		cast.UnsafeCastOptions())

	s.checkCast(
		s.fromJSON(arrow.PrimitiveTypes.Uint64, `["18446744073709551615"]`),
		s.fromJSON(dec256(40, 0), `["18446744073709551615"]`),
		cast.UnsafeCastOptions())
}

func (s *DecimalCastSuite) TestFromStringErrors() {
	// Garbage nullifies under safe options and aborts otherwise.
	s.checkCast(
		s.fromJSON(arrow.BinaryTypes.String, `["4.56", "tea", ""]`),
		s.fromJSON(dec128(7, 3), `["4.560", null, null]`),
		cast.SafeCastOptions())

	src := s.fromJSON(arrow.BinaryTypes.String, `["tea"]`)
	defer src.Release()
	_, err := cast.CastWithOptions(s.ctx, src, dec128(7, 3), cast.UnsafeCastOptions())
	s.Require().Error(err)
	s.ErrorIs(err, arrow.ErrInvalid)

	// A malformed target type is rejected up front, even under safe
	// options and even for an empty input.
	empty := s.fromJSON(arrow.BinaryTypes.String, `[]`)
	defer empty.Release()
	_, err = cast.CastWithOptions(s.ctx, empty, dec128(7, -3), cast.SafeCastOptions())
	s.Require().Error(err)
	s.ErrorIs(err, arrow.ErrInvalid)

	_, err = cast.CastWithOptions(s.ctx, empty, dec128(40, 3), cast.SafeCastOptions())
	s.Require().Error(err)
	s.ErrorIs(err, arrow.ErrInvalid)
}

func (s *DecimalCastSuite) TestFromStringRounding() {
	// Digits beyond the target scale round half away from zero.
	s.checkCast(
		s.fromJSON(arrow.BinaryTypes.String, `["1.2345", "1.2355", "-1.2355", "1.23449"]`),
		s.fromJSON(dec128(7, 3), `["1.235", "1.236", "-1.236", "1.234"]`),
		cast.UnsafeCastOptions())
}

func TestDecimalCasts(t *testing.T) {
	suite.Run(t, new(DecimalCastSuite))
}
