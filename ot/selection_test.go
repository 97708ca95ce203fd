package ot

import "testing"

func TestTransformSelection(t *testing.T) {
	tests := []struct {
		name string
		op   []string
		sel  Selection
		want Selection
	}{
		{
			"insert before selection",
			[]string{"R:5", "I:Hello", "R:5"},
			Selection{Start: 6, End: 8},
			Selection{Start: 11, End: 13},
		},
		{
			"insert inside selection",
			[]string{"R:5", "I:Hello", "R:5"},
			Selection{Start: 3, End: 6},
			Selection{Start: 3, End: 11},
		},
		{
			"insert after selection",
			[]string{"R:5", "I:Hello", "R:5"},
			Selection{Start: 2, End: 4},
			Selection{Start: 2, End: 4},
		},
		{
			"delete before selection",
			[]string{"R:1", "D:2", "R:7"},
			Selection{Start: 5, End: 8},
			Selection{Start: 3, End: 6},
		},
		{
			"delete entirely inside selection",
			[]string{"R:3", "D:2", "R:5"},
			Selection{Start: 2, End: 10},
			Selection{Start: 2, End: 8},
		},
		{
			"delete overlaps selection start",
			[]string{"R:3", "D:3", "R:4"},
			Selection{Start: 4, End: 7},
			Selection{Start: 3, End: 4},
		},
		{
			"delete overlaps selection end",
			[]string{"R:5", "D:3", "R:2"},
			Selection{Start: 4, End: 7},
			Selection{Start: 4, End: 5},
		},
		{
			"delete swallows selection",
			[]string{"R:2", "D:6", "R:2"},
			Selection{Start: 3, End: 6},
			Selection{Start: 2, End: 2},
		},
		{
			"delete after selection",
			[]string{"R:7", "D:2", "R:1"},
			Selection{Start: 3, End: 6},
			Selection{Start: 3, End: 6},
		},
		{
			"caret at insert position shifts right",
			[]string{"R:3", "I:ab", "R:3"},
			Selection{Start: 3, End: 3},
			Selection{Start: 5, End: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransformSelection(tt.sel, cs(t, tt.op...))
			if got != tt.want {
				t.Errorf("TransformSelection() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
