package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"irlearn-go/services/bridge"
	"irlearn-go/types"
	"irlearn-go/x/logx"
)

var log = logx.New("collector")

// Ingest reads bridge frames from r into st until EOF or ctx ends. When r is
// also a writer, pings are answered.
func Ingest(ctx context.Context, r io.Reader, st *Store) error {
	rd := bridge.NewFramedReader(r)
	var wr *bridge.FramedWriter
	if w, ok := r.(io.Writer); ok {
		wr = bridge.NewFramedWriter(w)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := rd.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch f.Type {
		case bridge.FramePing:
			if wr != nil {
				if err := wr.WriteFrame(bridge.Frame{Type: bridge.FramePong}); err != nil {
					return err
				}
			}
		case bridge.FrameClose:
			log.Info("device closed link")
			return nil
		case bridge.FrameEvent:
			ev, err := bridge.DecodeEvent(f)
			if err != nil {
				log.Warn("bad event frame", "err", err)
				continue
			}
			apply(st, ev)
		}
	}
}

func apply(st *Store, ev bridge.EventFrame) {
	switch ev.Tag {
	case "rx":
		var c types.IRCapture
		if err := json.Unmarshal(ev.Data, &c); err != nil {
			log.Warn("bad rx payload", "source", ev.Source, "err", err)
			return
		}
		st.Add(Capture{
			Source:     ev.Source,
			TSms:       ev.TSms,
			Size:       c.Size,
			DurationUs: c.DurationUs,
			Samples:    c.Samples,
			Match:      c.Match,
		})
		log.Info("capture", "source", ev.Source, "size", c.Size)
	case "match":
		var m types.IRMatch
		if json.Unmarshal(ev.Data, &m) == nil {
			st.annotate(ev.Source, func(c *Capture) { c.Match = m.Name })
		}
	case "learned":
		var l types.IRLearned
		if json.Unmarshal(ev.Data, &l) == nil {
			st.annotate(ev.Source, func(c *Capture) { c.Learned = l.Name })
		}
	default:
		log.Debug("ignored event", "tag", ev.Tag)
	}
}
