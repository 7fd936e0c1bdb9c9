package tts

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Request asks the speech service to synthesize one piece of text.
type Request struct {
	ID       string
	Text     string
	Voice    string
	Language string
	Rate     string
	Pitch    string
	Volume   string
}

// NewRequestID returns a fresh request id in the form the service expects.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

type speechConfig struct {
	Context struct {
		Synthesis struct {
			Audio struct {
				MetadataOptions struct {
					SentenceBoundaryEnabled string `json:"sentenceBoundaryEnabled"`
					WordBoundaryEnabled     string `json:"wordBoundaryEnabled"`
				} `json:"metadataoptions"`
				OutputFormat string `json:"outputFormat"`
			} `json:"audio"`
		} `json:"synthesis"`
	} `json:"context"`
}

func speechConfigFrame(format Format, now time.Time) ([]byte, error) {
	var cfg speechConfig
	cfg.Context.Synthesis.Audio.MetadataOptions.SentenceBoundaryEnabled = "false"
	cfg.Context.Synthesis.Audio.MetadataOptions.WordBoundaryEnabled = "true"
	cfg.Context.Synthesis.Audio.OutputFormat = format.Name
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return EncodeText([][2]string{
		{HeaderTimestamp, now.UTC().Format(timestampLayout)},
		{HeaderContentType, "application/json; charset=utf-8"},
		{HeaderPath, PathSpeechConfig},
	}, body), nil
}

func ssmlFrame(req Request, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	body.WriteString("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='")
	if err := escape(&body, orDefault(req.Language, "en-US")); err != nil {
		return nil, err
	}
	body.WriteString("'><voice name='")
	if err := escape(&body, req.Voice); err != nil {
		return nil, err
	}
	body.WriteString("'><prosody pitch='")
	if err := escape(&body, orDefault(req.Pitch, "+0Hz")); err != nil {
		return nil, err
	}
	body.WriteString("' rate='")
	if err := escape(&body, orDefault(req.Rate, "+0%")); err != nil {
		return nil, err
	}
	body.WriteString("' volume='")
	if err := escape(&body, orDefault(req.Volume, "+0%")); err != nil {
		return nil, err
	}
	body.WriteString("'>")
	if err := escape(&body, req.Text); err != nil {
		return nil, err
	}
	body.WriteString("</prosody></voice></speak>")

	return EncodeText([][2]string{
		{HeaderRequestID, req.ID},
		{HeaderContentType, "application/ssml+xml"},
		{HeaderTimestamp, now.UTC().Format(timestampLayout)},
		{HeaderPath, PathSSML},
	}, body.Bytes()), nil
}

func escape(buf *bytes.Buffer, s string) error {
	return xml.EscapeText(buf, []byte(s))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
