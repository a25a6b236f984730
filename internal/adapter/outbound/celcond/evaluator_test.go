package celcond

import (
	"strings"
	"testing"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

func TestCompileSuppression(t *testing.T) {
	t.Parallel()

	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	finding := scan.Finding{
		Scanner:  "pii",
		Category: "pii",
		Score:    0.85,
		Message:  "EMAIL detected",
	}
	sctx := scan.Context{Direction: scan.DirectionOutput, Identity: "batch-worker"}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"match scanner", `scanner == "pii"`, true},
		{"match identity", `identity == "batch-worker"`, true},
		{"no match identity", `identity == "someone-else"`, false},
		{"score comparison", `score < 0.9 && direction == "output"`, true},
		{"message contains", `message.contains("EMAIL")`, true},
		{"compound no match", `scanner == "pii" && identity == "alice"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			suppress, err := eval.CompileSuppression(tt.expr)
			if err != nil {
				t.Fatalf("CompileSuppression(%q): %v", tt.expr, err)
			}
			if got := suppress(finding, sctx); got != tt.want {
				t.Fatalf("suppress(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestValidateExpression(t *testing.T) {
	t.Parallel()

	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{"valid", `scanner == "pii"`, ""},
		{"empty", ``, "empty"},
		{"unknown variable", `tool_name == "x"`, "invalid CEL expression"},
		{"not parseable", `scanner ==`, "invalid CEL expression"},
		{"too long", `scanner == "` + strings.Repeat("a", 2000) + `"`, "too long"},
		{"too deep", strings.Repeat("(", 60) + "true" + strings.Repeat(")", 60), "nesting too deep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := eval.ValidateExpression(tt.expr)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
