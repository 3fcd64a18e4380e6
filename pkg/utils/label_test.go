package utils

import (
	"reflect"
	"testing"
)

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{"empty existing", Label{}, Label{Value: "intent", Source: "nlp"}, Label{Value: "intent", Source: "nlp"}},
		{"empty incoming", Label{Value: "a", Source: "x"}, Label{}, Label{Value: "a", Source: "x"}},
		{"accumulate", Label{Value: "nlp.understand", Source: "pipeline"}, Label{Value: "collab.boost", Source: "pipeline"},
			Label{Value: "nlp.understand|collab.boost", Source: "pipeline"}},
		{"missing source", Label{Value: "a"}, Label{Value: "b", Source: "relevance"}, Label{Value: "a|b", Source: "relevance"}},
		{"repeated degradation", Label{Value: "preference.load|nlp.understand", Source: "pipeline"}, Label{Value: "preference.load", Source: "pipeline"},
			Label{Value: "preference.load|nlp.understand", Source: "pipeline"}},
		{"merged fork", Label{Value: "a|b", Source: "nlp,collab"}, Label{Value: "b|c", Source: "collab,relevance"},
			Label{Value: "a|b|c", Source: "nlp,collab,relevance"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeLabel(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("MergeLabel = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLabel_Values(t *testing.T) {
	l := Label{Value: "preference.load|collab.boost"}
	if got := l.Values(); !reflect.DeepEqual(got, []string{"preference.load", "collab.boost"}) {
		t.Errorf("Values = %v", got)
	}
	if !l.Has("collab.boost") || l.Has("collab") {
		t.Error("Has must match whole values only")
	}
	if (Label{}).Values() != nil {
		t.Error("empty label has no values")
	}
}
