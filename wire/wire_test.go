package wire

import (
	"encoding/json"
	"testing"
)

func TestChatRequestRoundTrip(t *testing.T) {
	req := NewChatRequest(
		"Plan a 2-day trip to Tokyo",
		[]HistoryEntry{{Role: "user", Content: "Hi"}},
		map[string]any{"language": "en", "currency": "USD"},
	)

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ChatRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Type != TypeChatRequest {
		t.Errorf("type: got %q, want %q", decoded.Type, TypeChatRequest)
	}
	if decoded.Query != req.Query {
		t.Errorf("query: got %q, want %q", decoded.Query, req.Query)
	}
	if len(decoded.History) != 1 || decoded.History[0] != req.History[0] {
		t.Errorf("history mismatch: %+v", decoded.History)
	}
	if decoded.Preferences["language"] != "en" || decoded.Preferences["currency"] != "USD" {
		t.Errorf("preferences mismatch: %+v", decoded.Preferences)
	}
}

func TestChatRequestNormalisesNils(t *testing.T) {
	req := NewChatRequest("query", nil, nil)

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["history"]) != "[]" {
		t.Errorf("history: got %s, want []", raw["history"])
	}
	if string(raw["preferences"]) != "{}" {
		t.Errorf("preferences: got %s, want {}", raw["preferences"])
	}
}

func TestResponseEncoding(t *testing.T) {
	resp := NewResponse("q1", "yes")

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"type":"response","question_id":"q1","response":"yes"}`
	if string(data) != want {
		t.Errorf("encoded: got %s, want %s", data, want)
	}
}

func TestDecodeKnownTypes(t *testing.T) {
	env := Decode([]byte(`{"type":"question","data":{"question_id":"q1","text":"Which hotel?"}}`))
	if env.Type != TypeQuestion {
		t.Fatalf("type: got %q, want %q", env.Type, TypeQuestion)
	}

	var q Question
	if err := json.Unmarshal(env.Data, &q); err != nil {
		t.Fatalf("question payload: %v", err)
	}
	if q.QuestionID != "q1" || q.Text != "Which hotel?" {
		t.Errorf("question: got %+v", q)
	}

	env = Decode([]byte(`{"type":"complete"}`))
	if env.Type != TypeComplete {
		t.Errorf("type: got %q, want %q", env.Type, TypeComplete)
	}
	if env.Data != nil {
		t.Errorf("complete should have no data, got %s", env.Data)
	}
}

func TestDecodeMalformedIsUnknown(t *testing.T) {
	for _, frame := range []string{
		"not json at all",
		`["an","array"]`,
		`{"no":"type"}`,
		"",
	} {
		env := Decode([]byte(frame))
		if env.Type != TypeUnknown {
			t.Errorf("Decode(%q): got type %q, want %q", frame, env.Type, TypeUnknown)
		}
		if string(env.Data) != frame {
			t.Errorf("Decode(%q): raw frame not preserved, got %q", frame, env.Data)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	if got := ErrorMessage(json.RawMessage(`"Something went wrong"`)); got != "Something went wrong" {
		t.Errorf("string data: got %q", got)
	}
	if got := ErrorMessage(json.RawMessage(`{"message":"rate limited"}`)); got != "rate limited" {
		t.Errorf("object data: got %q", got)
	}
	if got := ErrorMessage(json.RawMessage(`{"code":500}`)); got != `{"code":500}` {
		t.Errorf("fallback: got %q", got)
	}
}
