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

// Package intervals parses the textual interval grammar: a sequence of
// signed, possibly fractional "<amount> <unit>" pairs, e.g.
// "1 year -2 months 3.5 days". Fractional amounts cascade into the
// next finer component (months into days at 30 days per month, days
// into nanoseconds at 24 hours per day); a fraction finer than the
// result type can hold is an error, never silently dropped.
package intervals

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/JohnCGriffin/overflow"
)

const (
	nanosPerMilli = 1_000_000
	nanosPerDay   = 86_400_000_000_000
	daysPerMonth  = 30
	maxFracDigits = 9
)

// amount is a parsed signed decimal number split into integer part and
// fraction, the fraction held as fracNum/fracDen with fracDen a power
// of ten.
type amount struct {
	neg     bool
	intPart int64
	fracNum int64
	fracDen int64
}

type component struct {
	amt  amount
	unit string
}

var unitNames = map[string]struct{}{
	"year": {}, "month": {}, "week": {}, "day": {},
	"hour": {}, "minute": {}, "second": {},
	"millisecond": {}, "microsecond": {}, "nanosecond": {},
}

func tokenize(s string) ([]component, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty interval string")
	}
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("interval %q is not a sequence of amount/unit pairs", s)
	}
	out := make([]component, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		amt, err := parseAmount(fields[i])
		if err != nil {
			return nil, fmt.Errorf("interval %q: %w", s, err)
		}
		unit := strings.ToLower(fields[i+1])
		unit = strings.TrimSuffix(unit, "s")
		if _, ok := unitNames[unit]; !ok {
			return nil, fmt.Errorf("interval %q: unknown unit %q", s, fields[i+1])
		}
		out = append(out, component{amt: amt, unit: unit})
	}
	return out, nil
}

func parseAmount(tok string) (amount, error) {
	var a amount
	rest := tok
	switch {
	case strings.HasPrefix(rest, "-"):
		a.neg = true
		rest = rest[1:]
	case strings.HasPrefix(rest, "+"):
		rest = rest[1:]
	}
	intDigits, fracDigits, hasDot := rest, "", false
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		intDigits, fracDigits, hasDot = rest[:i], rest[i+1:], true
	}
	if intDigits == "" && fracDigits == "" {
		return a, fmt.Errorf("invalid amount %q", tok)
	}
	if len(fracDigits) > maxFracDigits {
		return a, fmt.Errorf("amount %q has more than %d fractional digits", tok, maxFracDigits)
	}
	var err error
	if a.intPart, err = parseDigits(intDigits); err != nil {
		return a, fmt.Errorf("invalid amount %q", tok)
	}
	a.fracDen = 1
	if hasDot {
		if a.fracNum, err = parseDigits(fracDigits); err != nil {
			return a, fmt.Errorf("invalid amount %q", tok)
		}
		for range fracDigits {
			a.fracDen *= 10
		}
	}
	return a, nil
}

func parseDigits(s string) (int64, error) {
	var v int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a digit: %q", c)
		}
		if v > (math.MaxInt64-int64(c-'0'))/10 {
			return 0, fmt.Errorf("overflow")
		}
		v = v*10 + int64(c-'0')
	}
	return v, nil
}

var errAmountRange = errors.New("amount out of range")

// scaled computes intPart*per*den + fracNum*per with overflow checks.
// The fraction term stays small (fracNum < 10^9, per <= 12) and needs
// none.
func scaled(a amount, per, den int64) (int64, bool) {
	t, ok := overflow.Mul64(a.intPart, per)
	if !ok {
		return 0, false
	}
	t, ok = overflow.Mul64(t, den)
	if !ok {
		return 0, false
	}
	return overflow.Add64(t, a.fracNum*per)
}

// accumulate folds one component into running months/days/nanos
// totals, cascading fractions downward. Totals that no longer fit an
// int64 are an error, never a silent wrap.
func accumulate(c component, months, days, nanos *int64) error {
	var monthsPer, daysPer, nanosPer int64
	switch c.unit {
	case "year":
		monthsPer = 12
	case "month":
		monthsPer = 1
	case "week":
		daysPer = 7
	case "day":
		daysPer = 1
	case "hour":
		nanosPer = 3_600_000_000_000
	case "minute":
		nanosPer = 60_000_000_000
	case "second":
		nanosPer = 1_000_000_000
	case "millisecond":
		nanosPer = nanosPerMilli
	case "microsecond":
		nanosPer = 1_000
	case "nanosecond":
		nanosPer = 1
	}

	sign := int64(1)
	if c.amt.neg {
		sign = -1
	}
	den := c.amt.fracDen

	// v is always non-negative, so sign*v cannot itself overflow.
	add := func(dst *int64, v int64) bool {
		s, ok := overflow.Add64(*dst, sign*v)
		if ok {
			*dst = s
		}
		return ok
	}

	switch {
	case monthsPer > 0:
		// Scaled total months; the sub-month remainder becomes days,
		// the sub-day remainder becomes nanoseconds. The remainder
		// terms stay below den*daysPerMonth and nanosPerDay.
		t, ok := scaled(c.amt, monthsPer, den)
		if !ok || !add(months, t/den) {
			return errAmountRange
		}
		td := (t % den) * daysPerMonth
		if !add(days, td/den) || !add(nanos, (td%den)*(nanosPerDay/den)) {
			return errAmountRange
		}
	case daysPer > 0:
		t, ok := scaled(c.amt, daysPer, den)
		if !ok || !add(days, t/den) {
			return errAmountRange
		}
		if !add(nanos, (t%den)*(nanosPerDay/den)) {
			return errAmountRange
		}
	default:
		// The whole part is kept out of the scaled arithmetic so a
		// nine-digit fraction of a large unit cannot overflow. After
		// the gcd reduction num and rem are coprime, so exactness is a
		// divisibility test on fracNum alone.
		g := gcd(nanosPer, den)
		num, rem := nanosPer/g, den/g
		if c.amt.fracNum%rem != 0 {
			return fmt.Errorf("amount is finer than a nanosecond")
		}
		whole, ok := overflow.Mul64(c.amt.intPart, nanosPer)
		if !ok {
			return errAmountRange
		}
		frac, ok := overflow.Mul64(c.amt.fracNum/rem, num)
		if !ok {
			return errAmountRange
		}
		t, ok := overflow.Add64(whole, frac)
		if !ok || !add(nanos, t) {
			return errAmountRange
		}
	}
	return nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func parse(s string) (months, days, nanos int64, err error) {
	comps, err := tokenize(s)
	if err != nil {
		return 0, 0, 0, err
	}
	for _, c := range comps {
		if err := accumulate(c, &months, &days, &nanos); err != nil {
			return 0, 0, 0, fmt.Errorf("interval %q: %w", s, err)
		}
	}
	return months, days, nanos, nil
}

func fitsInt32(v int64, what, s string) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("interval %q: %s component %d does not fit in 32 bits", s, what, v)
	}
	return int32(v), nil
}

// ParseYearMonth parses an interval restricted to calendar units and
// returns the total month count.
func ParseYearMonth(s string) (int32, error) {
	months, days, nanos, err := parse(s)
	if err != nil {
		return 0, err
	}
	if days != 0 || nanos != 0 {
		return 0, fmt.Errorf("interval %q has sub-month components", s)
	}
	return fitsInt32(months, "month", s)
}

// ParseDayTime parses an interval with no calendar units into day and
// millisecond components.
func ParseDayTime(s string) (days, millis int32, err error) {
	months, d, nanos, err := parse(s)
	if err != nil {
		return 0, 0, err
	}
	if months != 0 {
		return 0, 0, fmt.Errorf("interval %q has calendar components", s)
	}
	if nanos%nanosPerMilli != 0 {
		return 0, 0, fmt.Errorf("interval %q is finer than a millisecond", s)
	}
	if days, err = fitsInt32(d, "day", s); err != nil {
		return 0, 0, err
	}
	if millis, err = fitsInt32(nanos/nanosPerMilli, "millisecond", s); err != nil {
		return 0, 0, err
	}
	return days, millis, nil
}

// ParseMonthDayNano parses the full grammar into separate month, day
// and nanosecond components.
func ParseMonthDayNano(s string) (months, days int32, nanos int64, err error) {
	m, d, nanos, err := parse(s)
	if err != nil {
		return 0, 0, 0, err
	}
	if months, err = fitsInt32(m, "month", s); err != nil {
		return 0, 0, 0, err
	}
	if days, err = fitsInt32(d, "day", s); err != nil {
		return 0, 0, 0, err
	}
	return months, days, nanos, nil
}
