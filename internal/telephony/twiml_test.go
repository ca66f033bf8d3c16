package telephony

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDocumentRenderBasics(t *testing.T) {
	t.Run("say pause hangup", func(t *testing.T) {
		doc := NewDocument().
			Say("Hello there.", SayOptions{Voice: "Polly.Joanna"}).
			Pause(1).
			Hangup()

		out, err := doc.Render()
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if !strings.Contains(out, "<?xml") {
			t.Error("output should start with an XML declaration")
		}
		if !strings.Contains(out, "<Response>") || !strings.Contains(out, "</Response>") {
			t.Error("output should be wrapped in <Response>")
		}
		if !strings.Contains(out, `voice="Polly.Joanna"`) {
			t.Error("Say should carry the voice attribute")
		}
		if !strings.Contains(out, "<Hangup>") {
			t.Error("output should contain <Hangup>")
		}
		// Verbs must appear in the order they were added.
		if strings.Index(out, "<Say") > strings.Index(out, "<Pause") {
			t.Error("Say should precede Pause")
		}
	})

	t.Run("output is well-formed XML", func(t *testing.T) {
		doc := NewDocument().
			Say("a & b <c>", SayOptions{}).
			Gather(GatherOptions{Input: "speech dtmf", Action: "https://x.test/r?a=1&b=2"}, func(g *GatherBody) {
				g.Say("speak now", SayOptions{})
			}).
			Redirect("https://x.test/r?a=1&b=2")

		out, err := doc.Render()
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}

		dec := xml.NewDecoder(strings.NewReader(out))
		for {
			_, err := dec.Token()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("output is not well-formed XML: %v\n%s", err, out)
			}
		}
	})
}

func TestDocumentEscaping(t *testing.T) {
	t.Run("ampersand in spoken text", func(t *testing.T) {
		out, err := NewDocument().Say("a & b", SayOptions{}).Render()
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if !strings.Contains(out, "a &amp; b") {
			t.Errorf("spoken text should escape ampersands, got: %s", out)
		}
		if strings.Contains(out, ">a & b<") {
			t.Error("output must never contain a literal unescaped ampersand")
		}
	})

	t.Run("ampersand in action URL", func(t *testing.T) {
		out, err := NewDocument().
			Gather(GatherOptions{Action: "https://x.test/respond?prospect_id=1&conversation_count=0"}, nil).
			Render()
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if !strings.Contains(out, "prospect_id=1&amp;conversation_count=0") {
			t.Errorf("action URL ampersands should be escaped, got: %s", out)
		}
	})

	t.Run("angle brackets and quotes", func(t *testing.T) {
		out, err := NewDocument().Say(`<script> "quoted" 'single'`, SayOptions{}).Render()
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if strings.Contains(out, "<script>") {
			t.Error("angle brackets in text must be escaped")
		}
	})
}

func TestDocumentSayFallback(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty text", ""},
		{"whitespace only", "   "},
		{"invalid utf8", string([]byte{0xff, 0xfe, 0xfd})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewDocument().Say(tt.input, SayOptions{}).Render()
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if !strings.Contains(out, fallbackUtterance) {
				t.Errorf("unusable text should be replaced by the fallback utterance, got: %s", out)
			}
		})
	}
}

func TestDocumentFailsLoudly(t *testing.T) {
	t.Run("gather without action", func(t *testing.T) {
		_, err := NewDocument().Gather(GatherOptions{}, nil).Render()
		if err == nil {
			t.Error("Gather without an action URL should fail Render")
		}
	})

	t.Run("empty redirect target", func(t *testing.T) {
		_, err := NewDocument().Redirect("").Render()
		if err == nil {
			t.Error("Redirect without a target should fail Render")
		}
	})

	t.Run("first error wins", func(t *testing.T) {
		_, err := NewDocument().Redirect("").Say("still fine", SayOptions{}).Render()
		if err == nil {
			t.Error("error from earlier verb should survive later valid verbs")
		}
	})
}

func TestDocumentGatherNesting(t *testing.T) {
	out, err := NewDocument().
		Say("greeting", SayOptions{}).
		Gather(GatherOptions{Input: "speech dtmf", Action: "https://x.test/respond", Timeout: 5}, func(g *GatherBody) {
			g.Say("please respond", SayOptions{}).Pause(1)
		}).
		Redirect("https://x.test/respond").
		Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	gatherStart := strings.Index(out, "<Gather")
	gatherEnd := strings.Index(out, "</Gather>")
	nestedSay := strings.Index(out, "please respond")
	redirect := strings.Index(out, "<Redirect")

	if gatherStart == -1 || gatherEnd == -1 {
		t.Fatalf("output should contain a closed Gather, got: %s", out)
	}
	if nestedSay < gatherStart || nestedSay > gatherEnd {
		t.Error("nested Say should be inside the Gather")
	}
	if redirect < gatherEnd {
		t.Error("fallback Redirect should be outside (after) the Gather")
	}
	if !strings.Contains(out, `input="speech dtmf"`) {
		t.Error("Gather should carry the input attribute")
	}
	if !strings.Contains(out, `method="POST"`) {
		t.Error("Gather should default to POST")
	}
}

func TestDocumentConnectStream(t *testing.T) {
	out, err := NewDocument().
		ConnectStream("wss://example.com/media?agent_id=agent-1", []StreamParam{
			{Name: "call_log_id", Value: "cl-1"},
		}).
		Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, "<Connect>") {
		t.Error("output should contain <Connect>")
	}
	if !strings.Contains(out, `url="wss://example.com/media?agent_id=agent-1"`) {
		t.Error("Stream should carry the websocket URL")
	}
	if !strings.Contains(out, `name="call_log_id"`) {
		t.Error("Stream should carry custom parameters")
	}
}
