// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		want   UsageState
	}{
		{
			name:   "explicit deny at limit",
			fields: Fields{Allowed: boolPtr(false), UsageNow: intPtr(5), Limit: intPtr(5)},
			want:   UsageState{UsageCount: 5, Limit: 5, Allowed: false, Gated: true},
		},
		{
			name:   "deny without numbers",
			fields: Fields{Allowed: boolPtr(false)},
			want:   UsageState{Unbounded: true, Allowed: false, Gated: true},
		},
		{
			name:   "absent flag is informational",
			fields: Fields{UsageNow: intPtr(3), Limit: intPtr(10)},
			want:   UsageState{UsageCount: 3, Limit: 10, Allowed: true},
		},
		{
			name:   "over limit but server allows",
			fields: Fields{Allowed: boolPtr(true), UsageNow: intPtr(7), Limit: intPtr(5)},
			want:   UsageState{UsageCount: 7, Limit: 5, Allowed: true, Gated: true},
		},
		{
			name:   "at limit with flag missing",
			fields: Fields{UsageNow: intPtr(5), Limit: intPtr(5)},
			want:   UsageState{UsageCount: 5, Limit: 5, Allowed: true},
		},
		{
			name:   "zero limit is unbounded",
			fields: Fields{Allowed: boolPtr(true), UsageNow: intPtr(2), Limit: intPtr(0)},
			want:   UsageState{UsageCount: 2, Unbounded: true, Allowed: true, Gated: true},
		},
		{
			name:   "empty response",
			fields: Fields{},
			want:   UsageState{Unbounded: true, Allowed: true},
		},
		{
			name:   "negative usage clamps to zero",
			fields: Fields{UsageNow: intPtr(-4)},
			want:   UsageState{Unbounded: true, Allowed: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.fields))
		})
	}
}

func TestUsageState_Remaining(t *testing.T) {
	left, bounded := Evaluate(Fields{UsageNow: intPtr(3), Limit: intPtr(5)}).Remaining()
	assert.True(t, bounded)
	assert.Equal(t, 2, left)

	left, bounded = Evaluate(Fields{UsageNow: intPtr(9), Limit: intPtr(5)}).Remaining()
	assert.True(t, bounded)
	assert.Equal(t, 0, left)

	_, bounded = Evaluate(Fields{}).Remaining()
	assert.False(t, bounded)
}

func TestUsageState_Describe(t *testing.T) {
	denied := Evaluate(Fields{Allowed: boolPtr(false), UsageNow: intPtr(5), Limit: intPtr(5)})
	assert.Equal(t, "Free limit reached (5/5). Please upgrade.", denied.Describe())

	deniedBare := Evaluate(Fields{Allowed: boolPtr(false)})
	assert.Equal(t, "Free limit reached. Please upgrade.", deniedBare.Describe())

	allowed := Evaluate(Fields{Allowed: boolPtr(true), UsageNow: intPtr(1), Limit: intPtr(5)})
	assert.Equal(t, "1 of 5 messages used", allowed.Describe())

	assert.Equal(t, "0 messages used", Evaluate(Fields{}).Describe())
}
