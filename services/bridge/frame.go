package bridge

import (
	"encoding/json"
	"fmt"
	"io"
)

// Frames are length-prefixed: type(1) len(2 BE) payload.
const (
	FramePing  byte = 0x01
	FramePong  byte = 0x02
	FrameEvent byte = 0x20 // payload is a JSON EventFrame
	FrameClose byte = 0x7f
)

// MaxPayload is the largest payload the 16-bit length can carry.
const MaxPayload = 0xFFFF

// Frame is a very simple length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

// EventFrame carries one HAL event across the link.
type EventFrame struct {
	Source string          `json:"source"` // <domain>/<name>
	Tag    string          `json:"tag"`
	TSms   int64           `json:"ts_ms"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func EncodeEvent(ev EventFrame) (Frame, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameEvent, Payload: b}, nil
}

func DecodeEvent(f Frame) (EventFrame, error) {
	var ev EventFrame
	if f.Type != FrameEvent {
		return ev, fmt.Errorf("not an event frame: 0x%02x", f.Type)
	}
	err := json.Unmarshal(f.Payload, &ev)
	return ev, err
}

type FramedReader struct{ r io.Reader }
type FramedWriter struct{ w io.Writer }

func NewFramedReader(r io.Reader) *FramedReader { return &FramedReader{r: r} }
func NewFramedWriter(w io.Writer) *FramedWriter { return &FramedWriter{w: w} }

func (fr *FramedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: hdr[0], Payload: buf}, nil
}

// WriteFrame issues a single Write so frames from one writer never interleave
// on byte-oriented links.
func (fw *FramedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > MaxPayload {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	buf := make([]byte, 3+len(f.Payload))
	buf[0] = f.Type
	buf[1] = byte(len(f.Payload) >> 8)
	buf[2] = byte(len(f.Payload))
	copy(buf[3:], f.Payload)
	_, err := fw.w.Write(buf)
	return err
}
