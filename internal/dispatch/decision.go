package dispatch

import (
	"encoding/json"
	"unicode/utf8"
)

// Decision is the outcome of the first model turn, exactly one of DirectAnswer,
// FetchThenAnswer or MalformedOutput.
type Decision interface {
	decision()
}

// DirectAnswer: the records summary was enough to answer.
type DirectAnswer struct {
	Text string
}

// FetchThenAnswer: the answer needs the detail page at URL.
type FetchThenAnswer struct {
	URL string
}

// MalformedOutput: the model did not produce a usable decision.
type MalformedOutput struct {
	Raw string
}

func (DirectAnswer) decision()    {}
func (FetchThenAnswer) decision() {}
func (MalformedOutput) decision() {}

// ParseDecision interprets the model's json output. Anything that is not an object with an
// action is malformed, a fetch without a url is treated as an answer.
func ParseDecision(raw string) Decision {
	var fields map[string]any
	err := json.Unmarshal([]byte(raw), &fields)
	if err != nil || fields["action"] == nil {
		return MalformedOutput{Raw: raw}
	}

	action, _ := fields["action"].(string)
	url, _ := fields["url"].(string)
	if action == "fetch" && url != "" {
		return FetchThenAnswer{URL: url}
	}

	text, _ := fields["text"].(string)
	return DirectAnswer{Text: text}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
