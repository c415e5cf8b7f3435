// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimespan(t *testing.T) {
	testCases := []struct {
		in   string
		want time.Duration
	}{
		{in: "0.00:00:02", want: 2 * time.Second},
		{in: "00:00:00.250", want: 250 * time.Millisecond},
		{in: "1.02:03:04", want: 26*time.Hour + 3*time.Minute + 4*time.Second},
		{in: "00:01:00", want: time.Minute},
		{in: "23:59:59", want: 23*time.Hour + 59*time.Minute + 59*time.Second},
		{in: "250", want: 250 * time.Millisecond},
		{in: "0.5", want: 500 * time.Microsecond},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimespan(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseTimespanErrors(t *testing.T) {
	for _, in := range []string{"", "fast", "1:2", "1:2:3:4", "xx:00:00", "00:xx:00", "00:00:xx", "25:00:00", "00:61:00", "00:00:61"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseTimespan(in)
			assert.Error(t, err)
		})
	}
}
