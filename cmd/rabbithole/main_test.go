package main

import (
	"reflect"
	"testing"
)

func TestRewriteDirectTreeLookupArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no args",
			in:   []string{"rabbithole"},
			want: []string{"rabbithole"},
		},
		{
			name: "direct tree id first token",
			in:   []string{"rabbithole", "tree-abc123"},
			want: []string{"rabbithole", "trees", "show", "tree-abc123"},
		},
		{
			name: "direct tree id after value flag",
			in:   []string{"rabbithole", "--dir", "./tmp-data", "tree-abc123"},
			want: []string{"rabbithole", "--dir", "./tmp-data", "trees", "show", "tree-abc123"},
		},
		{
			name: "direct tree id after equals flag",
			in:   []string{"rabbithole", "--format=edn", "tree-abc123"},
			want: []string{"rabbithole", "--format=edn", "trees", "show", "tree-abc123"},
		},
		{
			name: "direct tree id after bool flag",
			in:   []string{"rabbithole", "--pretty", "tree-abc123"},
			want: []string{"rabbithole", "--pretty", "trees", "show", "tree-abc123"},
		},
		{
			name: "direct tree id after double dash",
			in:   []string{"rabbithole", "--dir", "./tmp-data", "--", "tree-abc123"},
			want: []string{"rabbithole", "--dir", "./tmp-data", "--", "trees", "show", "tree-abc123"},
		},
		{
			name: "bare prefix is not an id",
			in:   []string{"rabbithole", "tree-"},
			want: []string{"rabbithole", "tree-"},
		},
		{
			name: "normal subcommand not rewritten",
			in:   []string{"rabbithole", "trees", "show", "tree-abc123"},
			want: []string{"rabbithole", "trees", "show", "tree-abc123"},
		},
		{
			name: "unknown command not rewritten",
			in:   []string{"rabbithole", "wat"},
			want: []string{"rabbithole", "wat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewriteDirectTreeLookupArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("rewriteDirectTreeLookupArgs:\n got: %#v\nwant: %#v", got, tt.want)
			}
		})
	}
}
