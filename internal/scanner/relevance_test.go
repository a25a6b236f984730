package scanner

import (
	"context"
	"testing"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

func TestRelevanceScanner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		output   string
		wantFlag bool
	}{
		{
			"relevant answer",
			"explain how photosynthesis works in plants",
			"photosynthesis works when plants convert sunlight into energy",
			false,
		},
		{
			"unrelated answer",
			"explain how photosynthesis works in plants",
			"the stock market closed higher today on strong earnings",
			true,
		},
		{
			"stop words only input",
			"what is this about",
			"anything at all",
			false,
		},
	}

	s := NewRelevanceScanner(0.5)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sctx := scan.Context{Direction: scan.DirectionOutput, InputText: tt.input}
			res, err := s.Scan(context.Background(), tt.output, sctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if flagged := !res.Passed; flagged != tt.wantFlag {
				t.Fatalf("flagged = %v, want %v (findings: %+v)", flagged, tt.wantFlag, res.Findings)
			}
		})
	}
}

func TestRelevanceScanner_SkipsWithoutInputContext(t *testing.T) {
	t.Parallel()

	s := NewRelevanceScanner(0.9)
	res, err := s.Scan(context.Background(), "completely unrelated text", scan.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Passed {
		t.Fatal("relevance check must be skipped when the prompt is unknown")
	}
}
