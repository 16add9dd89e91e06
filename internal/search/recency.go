// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/uniplaces/carbon"
)

// Recency restricts results to papers submitted within a trailing period.
type Recency string

const (
	RecencyAll   Recency = "all"
	RecencyMonth Recency = "month"
	RecencyYear  Recency = "year"
)

// ParseRecency maps the years query parameter onto a Recency. An empty
// value means RecencyAll.
func ParseRecency(s string) (Recency, error) {
	switch r := Recency(strings.ToLower(strings.TrimSpace(s))); r {
	case "", RecencyAll:
		return RecencyAll, nil
	case RecencyMonth, RecencyYear:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRecency, s)
	}
}

// DateRange returns the [from, to] submission window ending at now.
// ok is false for RecencyAll.
func (r Recency) DateRange(now time.Time) (from, to time.Time, ok bool) {
	c := carbon.NewCarbon(now)
	switch r {
	case RecencyMonth:
		return c.SubMonth().Time, now, true
	case RecencyYear:
		return c.SubYear().Time, now, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// formatArxivDate renders t as the fixed-width YYYYMMDD0000 token arXiv's
// submittedDate field expects.
func formatArxivDate(t time.Time) string {
	return t.Format("20060102") + "0000"
}
