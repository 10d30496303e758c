package models

import "testing"

func TestChecklistItem(t *testing.T) {
	cl := &Checklist{Items: []ChecklistItem{
		{ID: "first"},
		{ID: "second"},
	}}

	item := cl.Item("second")
	if item == nil {
		t.Fatal("expected item, got nil")
	}
	// The pointer must alias the slice element so mutations persist.
	item.Completed = true
	if !cl.Items[1].Completed {
		t.Error("mutation through Item() did not reach the checklist")
	}

	if cl.Item("missing") != nil {
		t.Error("expected nil for unknown item ID")
	}
}

func TestChecklistUnmetRequired(t *testing.T) {
	cl := &Checklist{Items: []ChecklistItem{
		{ID: "a", Required: true, Completed: true},
		{ID: "b", Required: true},
		{ID: "c", Required: false},
		{ID: "d", Required: true},
	}}

	unmet := cl.UnmetRequired()
	if len(unmet) != 2 || unmet[0] != "b" || unmet[1] != "d" {
		t.Errorf("UnmetRequired() = %v, want [b d]", unmet)
	}
}

func TestChecklistProgress(t *testing.T) {
	tests := []struct {
		name  string
		items []ChecklistItem
		want  int
	}{
		{"empty", nil, 100},
		{"no required items", []ChecklistItem{{ID: "a", Required: false}}, 100},
		{"none done", []ChecklistItem{{ID: "a", Required: true}, {ID: "b", Required: true}}, 0},
		{"half done", []ChecklistItem{
			{ID: "a", Required: true, Completed: true},
			{ID: "b", Required: true},
		}, 50},
		{"optional items ignored", []ChecklistItem{
			{ID: "a", Required: true, Completed: true},
			{ID: "b", Required: false},
		}, 100},
		{"truncating division", []ChecklistItem{
			{ID: "a", Required: true, Completed: true},
			{ID: "b", Required: true},
			{ID: "c", Required: true},
		}, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl := &Checklist{Items: tt.items}
			if got := cl.Progress(); got != tt.want {
				t.Errorf("Progress() = %d, want %d", got, tt.want)
			}
		})
	}
}
