package client

import "testing"

func TestSanitizeModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain",
			raw:  `{"a":1}`,
			want: `{"a":1}`,
		},
		{
			name: "code fence",
			raw:  "```json\n{\"a\":1}\n```",
			want: `{"a":1}`,
		},
		{
			name: "trailing comma",
			raw:  `{"a":[1,2,],}`,
			want: `{"a":[1,2]}`,
		},
		{
			name: "comments and prose",
			raw:  "Here you go:\n{\n/* note */\"a\":1 // one\n}\nthanks",
			want: "{\n\"a\":1 \n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeModelJSON(tt.raw); got != tt.want {
				t.Errorf("SanitizeModelJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAnalysisResult(t *testing.T) {
	raw := "```json\n{\"primary\":{\"label\":\"cat\",\"confidence\":0.9,\"box\":{\"x\":0.1,\"y\":0.2,\"w\":0.3,\"h\":0.4},\"cx\":0.25,\"cy\":0.4},\"description\":\"a cat\",\"tags\":[\"cat\"]}\n```"

	result, err := ParseAnalysisResult(raw)
	if err != nil {
		t.Fatalf("ParseAnalysisResult failed: %v", err)
	}
	if result.Primary.Label != "cat" {
		t.Errorf("Expected label cat, got %s", result.Primary.Label)
	}
	if result.Primary.Box.W != 0.3 {
		t.Errorf("Expected box width 0.3, got %f", result.Primary.Box.W)
	}
}

func TestParseAnalysisResultFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		label string
	}{
		{"prose", "I see a cat on a sofa", "unclear image"},
		{"broken json", `{"primary": {"label": }`, "parse error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseAnalysisResult(tt.raw)
			if err != nil {
				t.Fatalf("Expected fallback, got error %v", err)
			}
			if result.Primary.Label != tt.label {
				t.Errorf("Expected label %q, got %q", tt.label, result.Primary.Label)
			}
			if result.Primary.Cx != 0.5 || result.Primary.Cy != 0.5 {
				t.Error("Expected centered fallback")
			}
		})
	}
}

func TestParseAnalysisResultEmptyPrimary(t *testing.T) {
	result, err := ParseAnalysisResult(`{"description":"nothing"}`)
	if err != nil {
		t.Fatal(err)
	}
	if result.Primary.Cx != 0.5 || result.Primary.Box.W != 0.5 {
		t.Errorf("Expected default center and box, got %+v", result.Primary)
	}
}
