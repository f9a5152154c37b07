package main

import (
	"strings"
	"testing"

	"github.com/zhouzirui/persona-echo/backend/internal/analysis/transcript"
)

func TestRenderReportCountsAndLimits(t *testing.T) {
	parsed, err := transcript.Parse("1/2/24, 10:00 AM - Alice: one\n" +
		"1/2/24, 10:01 AM - Bob: two\n" +
		"1/2/24, 10:02 AM - Alice: three\nstill three")
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}

	out := renderReport("chat.txt", parsed, 2)

	for _, want := range []string{"chat.txt", "messages:", "Alice", "Bob", "two", "still three"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "one") {
		t.Fatalf("limit not applied:\n%s", out)
	}
}
