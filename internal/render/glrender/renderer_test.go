package glrender

import (
	"testing"

	"voxterrain/internal/bufpool"

	"github.com/google/go-cmp/cmp"
)

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name string
		in   []bufpool.Range
		gap  int
		want []bufpool.Range
	}{
		{"empty", nil, 8, nil},
		{"single", []bufpool.Range{{Offset: 4, Count: 2}}, 0, []bufpool.Range{{Offset: 4, Count: 2}}},
		{
			"adjacent merge without gap",
			[]bufpool.Range{{Offset: 10, Count: 5}, {Offset: 0, Count: 10}},
			0,
			[]bufpool.Range{{Offset: 0, Count: 15}},
		},
		{
			"gap bounds merging",
			[]bufpool.Range{{Offset: 0, Count: 4}, {Offset: 8, Count: 4}, {Offset: 40, Count: 1}},
			4,
			[]bufpool.Range{{Offset: 0, Count: 12}, {Offset: 40, Count: 1}},
		},
		{
			"contained range",
			[]bufpool.Range{{Offset: 0, Count: 100}, {Offset: 10, Count: 5}},
			0,
			[]bufpool.Range{{Offset: 0, Count: 100}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coalesce(tt.in, tt.gap)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("coalesce mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCoalesceLeavesInputUntouched(t *testing.T) {
	in := []bufpool.Range{{Offset: 9, Count: 1}, {Offset: 0, Count: 1}}
	coalesce(in, 100)
	if in[0].Offset != 9 {
		t.Errorf("input reordered: %v", in)
	}
}
