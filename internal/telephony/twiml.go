package telephony

import (
	"bytes"
	"encoding/xml"
)

// Minimal TwiML builder for the voice verbs this service speaks.
// It intentionally avoids any provider SDK dependency.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name  `xml:"Gather"`
	Input         string    `xml:"input,attr"`
	Action        string    `xml:"action,attr"`
	Method        string    `xml:"method,attr"`
	SpeechTimeout string    `xml:"speechTimeout,attr,omitempty"`
	Timeout       int       `xml:"timeout,attr,omitempty"`
	Say           *twimlSay `xml:"Say,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

const twimlVoice = "Polly.Joanna"

// RenderGather speaks text and listens for the customer's next utterance,
// posting it back to actionURL.
func RenderGather(text, actionURL string) (string, error) {
	r := twimlResponse{Verbs: []any{
		twimlGather{
			Input:         "speech dtmf",
			Action:        actionURL,
			Method:        "POST",
			SpeechTimeout: "auto",
			Timeout:       5,
			Say:           &twimlSay{Voice: twimlVoice, Text: text},
		},
	}}
	return renderTwiML(r)
}

// RenderSayHangup speaks text and ends the call.
func RenderSayHangup(text string) (string, error) {
	r := twimlResponse{Verbs: []any{
		twimlSay{Voice: twimlVoice, Text: text},
		twimlHangup{},
	}}
	return renderTwiML(r)
}

func renderTwiML(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
