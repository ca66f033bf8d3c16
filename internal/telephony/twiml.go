package telephony

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// TwiML document builder. Verbs are collected into a tree and serialized in
// one validating pass, so a document can never render with unbalanced or
// misnested tags. Twilio expects Content-Type: text/xml.

// ContentType is the content type call-control documents are served with.
const ContentType = "text/xml; charset=utf-8"

// fallbackUtterance is spoken in place of text that cannot safely be
// rendered (empty or not valid UTF-8), instead of leaking garbage into
// spoken output.
const fallbackUtterance = "One moment please."

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	NumDigits     int      `xml:"numDigits,attr,omitempty"`
	Verbs         []any
}

type twimlConnect struct {
	XMLName xml.Name    `xml:"Connect"`
	Stream  twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// SayOptions selects the provider voice for a Say verb.
type SayOptions struct {
	Voice    string
	Language string
}

// GatherOptions configures a Gather verb. Action is the callback URL the
// provider posts collected input to.
type GatherOptions struct {
	Input         string // e.g. "speech dtmf"
	Action        string
	Method        string
	Timeout       int
	SpeechTimeout string // "auto" or seconds
	NumDigits     int
}

// StreamParam is a custom parameter passed to a media stream.
type StreamParam struct {
	Name  string
	Value string
}

// Document accumulates top-level call-control verbs. The zero value is not
// usable; call NewDocument.
type Document struct {
	verbs []any
	err   error
}

// GatherBody is the builder scope inside a Gather. Only the verbs Twilio
// allows to nest (Say, Pause, Play) are exposed, so misnesting a top-level
// verb inside a gather is a compile error rather than malformed output.
type GatherBody struct {
	verbs []any
}

func NewDocument() *Document {
	return &Document{}
}

func (d *Document) fail(err error) *Document {
	if d.err == nil {
		d.err = err
	}
	return d
}

func safeText(text string) string {
	if strings.TrimSpace(text) == "" || !utf8.ValidString(text) {
		return fallbackUtterance
	}
	return text
}

// Say speaks text to the caller. Free text is XML-escaped during
// serialization; unusable text is replaced with a safe fallback utterance.
func (d *Document) Say(text string, opts SayOptions) *Document {
	d.verbs = append(d.verbs, twimlSay{
		Voice:    opts.Voice,
		Language: opts.Language,
		Text:     safeText(text),
	})
	return d
}

// Pause waits for the given number of seconds.
func (d *Document) Pause(seconds int) *Document {
	if seconds < 1 {
		seconds = 1
	}
	d.verbs = append(d.verbs, twimlPause{Length: seconds})
	return d
}

// Play plays an audio clip from a URL.
func (d *Document) Play(clipURL string) *Document {
	if _, err := url.Parse(clipURL); err != nil || clipURL == "" {
		return d.fail(fmt.Errorf("twiml: invalid Play URL %q", clipURL))
	}
	d.verbs = append(d.verbs, twimlPlay{URL: clipURL})
	return d
}

// Hangup ends the call.
func (d *Document) Hangup() *Document {
	d.verbs = append(d.verbs, twimlHangup{})
	return d
}

// Redirect hands control to another call-control URL. This is typically
// placed after a Gather as a safety net that fires if the gather times out
// without input.
func (d *Document) Redirect(target string) *Document {
	if _, err := url.Parse(target); err != nil || target == "" {
		return d.fail(fmt.Errorf("twiml: invalid Redirect URL %q", target))
	}
	d.verbs = append(d.verbs, twimlRedirect{Method: "POST", URL: target})
	return d
}

// Gather collects spoken or keypad input and posts it to opts.Action. The
// nested callback builds the verbs spoken inside the gather.
func (d *Document) Gather(opts GatherOptions, nested func(g *GatherBody)) *Document {
	if opts.Action == "" {
		return d.fail(fmt.Errorf("twiml: Gather requires an action URL"))
	}
	if _, err := url.Parse(opts.Action); err != nil {
		return d.fail(fmt.Errorf("twiml: invalid Gather action URL %q", opts.Action))
	}

	g := &GatherBody{}
	if nested != nil {
		nested(g)
	}

	method := opts.Method
	if method == "" {
		method = "POST"
	}
	d.verbs = append(d.verbs, twimlGather{
		Input:         opts.Input,
		Action:        opts.Action,
		Method:        method,
		Timeout:       opts.Timeout,
		SpeechTimeout: opts.SpeechTimeout,
		NumDigits:     opts.NumDigits,
		Verbs:         g.verbs,
	})
	return d
}

// ConnectStream starts a bidirectional media stream to a websocket URL.
// Everything after a Connect is unreachable, so it should be the last verb.
func (d *Document) ConnectStream(wsURL string, params []StreamParam) *Document {
	if wsURL == "" {
		return d.fail(fmt.Errorf("twiml: Connect requires a stream URL"))
	}
	var ps []twimlParameter
	for _, p := range params {
		ps = append(ps, twimlParameter{Name: p.Name, Value: p.Value})
	}
	d.verbs = append(d.verbs, twimlConnect{Stream: twimlStream{URL: wsURL, Parameters: ps}})
	return d
}

// Say inside a Gather.
func (g *GatherBody) Say(text string, opts SayOptions) *GatherBody {
	g.verbs = append(g.verbs, twimlSay{
		Voice:    opts.Voice,
		Language: opts.Language,
		Text:     safeText(text),
	})
	return g
}

// Pause inside a Gather.
func (g *GatherBody) Pause(seconds int) *GatherBody {
	if seconds < 1 {
		seconds = 1
	}
	g.verbs = append(g.verbs, twimlPause{Length: seconds})
	return g
}

// Play inside a Gather.
func (g *GatherBody) Play(clipURL string) *GatherBody {
	g.verbs = append(g.verbs, twimlPlay{URL: clipURL})
	return g
}

// Render serializes the document. A document built through an invalid call
// fails here rather than emitting malformed markup; the serialized output is
// always well formed (encoding/xml escapes text and attributes, including
// '&' in embedded action URLs).
func (d *Document) Render() (string, error) {
	if d.err != nil {
		return "", d.err
	}

	resp := twimlResponse{Verbs: d.verbs}
	out, err := xml.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("twiml: marshal failed: %w", err)
	}
	return xml.Header + string(out), nil
}
