package dispatch

import (
	"reflect"
	"testing"
)

func TestMentionExtractor(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"no mentions", "nothing to see here", nil},
		{"single mention", "handing off to @reviewer now", []string{"reviewer"}},
		{"multiple sorted", "@writer then @editor then @writer again", []string{"editor", "writer"}},
		{"hyphenated id", "ping @data-analyst for numbers", []string{"data-analyst"}},
		{"bare at sign ignored", "email me @ the office", nil},
	}

	ex := NewMentionExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ex.Extract(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestKnownAgentExtractor_FiltersRoster(t *testing.T) {
	ex := NewKnownAgentExtractor(NewMentionExtractor(), []string{"reviewer", "editor"})

	got := ex.Extract("cc @reviewer and @some-random-handle")
	want := []string{"reviewer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %v, want %v", got, want)
	}
}
