package tts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frame paths spoken by the speech service.
const (
	PathTurnStart     = "turn.start"
	PathAudioMetadata = "audio.metadata"
	PathAudio         = "audio"
	PathTurnEnd       = "turn.end"
	PathResponse      = "response"
	PathSpeechConfig  = "speech.config"
	PathSSML          = "ssml"
)

// Header names.
const (
	HeaderPath        = "Path"
	HeaderRequestID   = "X-RequestId"
	HeaderTimestamp   = "X-Timestamp"
	HeaderContentType = "Content-Type"
)

var headerEnd = []byte("\r\n\r\n")

// ErrMalformedFrame reports a frame that cannot be split into headers and body.
var ErrMalformedFrame = errors.New("malformed speech frame")

// Frame is one inbound or outbound message.
type Frame struct {
	Headers map[string]string
	Body    []byte
	Binary  bool
}

// Path returns the frame path.
func (f Frame) Path() string { return f.Headers[HeaderPath] }

// RequestID returns the id of the request that produced the frame.
func (f Frame) RequestID() string { return f.Headers[HeaderRequestID] }

// ParseText splits a text message into headers and body.
func ParseText(data []byte) (Frame, error) {
	i := bytes.Index(data, headerEnd)
	if i < 0 {
		return Frame{}, fmt.Errorf("%w: no header terminator", ErrMalformedFrame)
	}
	headers, err := parseHeaders(data[:i])
	if err != nil {
		return Frame{}, err
	}
	return Frame{Headers: headers, Body: data[i+len(headerEnd):]}, nil
}

// ParseBinary splits a binary message: a big endian uint16 header length,
// the header block and the audio payload.
func ParseBinary(data []byte) (Frame, error) {
	if len(data) < 2 {
		return Frame{}, fmt.Errorf("%w: short binary frame", ErrMalformedFrame)
	}
	n := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+n {
		return Frame{}, fmt.Errorf("%w: header length %d exceeds frame", ErrMalformedFrame, n)
	}
	headers, err := parseHeaders(bytes.TrimSuffix(data[2:2+n], []byte("\r\n")))
	if err != nil {
		return Frame{}, err
	}
	return Frame{Headers: headers, Body: data[2+n:], Binary: true}, nil
}

func parseHeaders(block []byte) (map[string]string, error) {
	headers := make(map[string]string)
	for _, line := range strings.Split(string(block), "\r\n") {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformedFrame, line)
		}
		headers[canonicalHeader(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if headers[HeaderPath] == "" {
		return nil, fmt.Errorf("%w: missing path", ErrMalformedFrame)
	}
	return headers, nil
}

func canonicalHeader(key string) string {
	for _, known := range []string{HeaderPath, HeaderRequestID, HeaderTimestamp, HeaderContentType} {
		if strings.EqualFold(key, known) {
			return known
		}
	}
	return key
}

// EncodeText renders a text frame. Headers are written in the given order.
func EncodeText(headers [][2]string, body []byte) []byte {
	var buf bytes.Buffer
	writeHeaders(&buf, headers)
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// EncodeBinary renders a binary frame.
func EncodeBinary(headers [][2]string, body []byte) []byte {
	var block bytes.Buffer
	writeHeaders(&block, headers)
	out := make([]byte, 2, 2+block.Len()+len(body))
	binary.BigEndian.PutUint16(out, uint16(block.Len()))
	out = append(out, block.Bytes()...)
	return append(out, body...)
}

func writeHeaders(buf *bytes.Buffer, headers [][2]string) {
	for _, h := range headers {
		buf.WriteString(h[0])
		buf.WriteByte(':')
		buf.WriteString(h[1])
		buf.WriteString("\r\n")
	}
}
