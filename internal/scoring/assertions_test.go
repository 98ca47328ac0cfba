package scoring

import "testing"

func TestEvaluateExpectedConstraints_Empty(t *testing.T) {
	eval := EvaluateExpectedConstraints("", "anything")
	if eval.Total != 0 || eval.Passed != 0 {
		t.Fatalf("expected empty evaluation, got %+v", eval)
	}
}

func TestEvaluateExpectedConstraints_MixedPassFail(t *testing.T) {
	raw := "contains: hello\nnot_contains: goodbye\nmax_words: 3"
	eval := EvaluateExpectedConstraints(raw, "hello there friend")
	if eval.Total != 3 {
		t.Fatalf("expected 3 parsed constraints, got %d", eval.Total)
	}
	if eval.Passed != 3 {
		t.Fatalf("expected all 3 to pass, got %d: %+v", eval.Passed, eval.Results)
	}
}

func TestEvaluateExpectedConstraints_RegexAndICase(t *testing.T) {
	raw := "regex: ^hello\nicontains: HELLO"
	eval := EvaluateExpectedConstraints(raw, "hello world")
	if eval.Passed != 2 {
		t.Fatalf("expected both to pass, got %+v", eval.Results)
	}
}

func TestEvaluateExpectedConstraints_UnsupportedTypeFails(t *testing.T) {
	eval := EvaluateExpectedConstraints("bogus_check: x", "anything")
	if eval.Total != 1 || eval.Passed != 0 {
		t.Fatalf("expected 1 failing unsupported check, got %+v", eval)
	}
}

func TestEvaluateExpectedConstraints_MaxWordsInvalidValue(t *testing.T) {
	eval := EvaluateExpectedConstraints("max_words: not_a_number", "one two three")
	if eval.Passed != 0 {
		t.Fatalf("expected invalid max_words to fail, got %+v", eval.Results)
	}
}

func TestEvaluateExpectedConstraints_DropsChunkWithoutColon(t *testing.T) {
	eval := EvaluateExpectedConstraints("contains: hi\nno colon here", "hi")
	if eval.Total != 1 {
		t.Fatalf("expected malformed chunk dropped, got total=%d", eval.Total)
	}
}

func TestEvaluateExpectedConstraints_RegexMultilineAnchor(t *testing.T) {
	raw := "regex: ^second line$"
	outputText := "first line\nsecond line\nthird line"
	eval := EvaluateExpectedConstraints(raw, outputText)
	if eval.Passed != 1 {
		t.Fatalf("expected ^$ to match per-line in multi-line output, got %+v", eval.Results)
	}
}
