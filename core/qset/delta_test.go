package qset

import (
	"reflect"
	"testing"
)

func TestChainDeltas(t *testing.T) {
	tests := []struct {
		name        string
		oldParentID string
		newParentID string
		count       int
		want        []ChainDelta
	}{
		{name: "zero count", oldParentID: "a", newParentID: "b", count: 0},
		{name: "same parent", oldParentID: "a", newParentID: "a", count: 3},
		{name: "creation", newParentID: "b", count: 1, want: []ChainDelta{{StartID: "b", Delta: 1}}},
		{name: "deletion", oldParentID: "a", count: 2, want: []ChainDelta{{StartID: "a", Delta: -2}}},
		{
			name:        "move",
			oldParentID: "a",
			newParentID: "b",
			count:       5,
			want: []ChainDelta{
				{StartID: "a", Delta: -5},
				{StartID: "b", Delta: 5},
			},
		},
		{name: "no parents at all", count: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChainDeltas(tt.oldParentID, tt.newParentID, tt.count)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ChainDeltas() = %v, want %v", got, tt.want)
			}
		})
	}
}
