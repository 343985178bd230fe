// Package console is a line-oriented operator shell for the IR device. It
// reads commands from a serial console and drives the device over the bus.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"irlearn-go/bus"
	"irlearn-go/services/hal"
	"irlearn-go/types"
	"irlearn-go/x/logx"
	"irlearn-go/x/mathx"
)

var log = logx.New("console")

const (
	defaultRecord  = 10 * time.Second
	maxRecord      = 120 * time.Second
	replyTimeout   = 2 * time.Second
	sendEventSlack = 2 * time.Second
)

var ErrUsage = errors.New("usage")

// Config is the JSON payload expected on "config/console".
type Config struct {
	Device string `json:"device"`
	Domain string `json:"domain,omitempty"`
}

type Console struct {
	conn   *bus.Connection
	out    io.Writer
	domain string
	name   string
}

func New(conn *bus.Connection, out io.Writer, cfg Config) *Console {
	c := &Console{conn: conn, out: out, domain: cfg.Domain, name: cfg.Device}
	if c.domain == "" {
		c.domain = "io"
	}
	if c.name == "" {
		c.name = "ir0"
	}
	return c
}

// Start waits for config/console, then serves rw until ctx ends or rw is
// exhausted.
func Start(ctx context.Context, conn *bus.Connection, rw io.ReadWriter) {
	sub := conn.Subscribe(bus.T("config", "console"))
	var cfg Config
	select {
	case <-ctx.Done():
		conn.Unsubscribe(sub)
		return
	case m := <-sub.Channel():
		if err := decode(m.Payload, &cfg); err != nil {
			log.Warn("bad console config", "err", err)
		}
	}
	conn.Unsubscribe(sub)

	c := New(conn, rw, cfg)
	if err := c.Run(ctx, rw); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("console stopped", "err", err)
	}
}

// Run executes one command per input line.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimRight(sc.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
		errCh <- sc.Err()
	}()

	c.printf("type 'help' for commands\n")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case line := <-lines:
			if err := c.Exec(ctx, line); err != nil {
				c.printf("error: %v\n", err)
			}
		}
	}
}

// Exec runs a single command line. Blank lines are ignored.
func (c *Console) Exec(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(tokens[0]), tokens[1:]

	switch cmd {
	case "help", "h":
		c.help()
		return nil
	case "record", "r":
		return c.record(ctx, args)
	case "send", "s":
		if len(args) != 1 {
			return fmt.Errorf("%w: send <name>", ErrUsage)
		}
		return c.send(ctx, args[0])
	case "list", "l":
		return c.list(ctx)
	case "forget":
		if len(args) != 1 {
			return fmt.Errorf("%w: forget <name>", ErrUsage)
		}
		if err := c.request(ctx, "forget", types.IRForget{Name: args[0]}, nil); err != nil {
			return err
		}
		c.printf("forgot %s\n", args[0])
		return nil
	case "clear":
		if err := c.request(ctx, "clear", nil, nil); err != nil {
			return err
		}
		c.printf("receiver re-armed\n")
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *Console) help() {
	c.printf("commands:\n")
	c.printf("  help | h                     show this help\n")
	c.printf("  record | r <name> [seconds]  learn the next capture as <name>\n")
	c.printf("  send | s <name>              transmit a learned signal\n")
	c.printf("  list | l                     list learned signals\n")
	c.printf("  forget <name>                delete a learned signal\n")
	c.printf("  clear                        discard any capture and re-arm\n")
}

func (c *Console) record(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: record <name> [seconds]", ErrUsage)
	}
	name, wait := args[0], defaultRecord
	if len(args) == 2 {
		sec, err := strconv.Atoi(args[1])
		if err != nil || sec <= 0 {
			return fmt.Errorf("%w: seconds must be a positive integer", ErrUsage)
		}
		wait = mathx.Min(time.Duration(sec)*time.Second, maxRecord)
	}

	ev := c.conn.Subscribe(hal.EventTopic(c.domain, types.KindIR, c.name, "+"))
	defer c.conn.Unsubscribe(ev)

	if err := c.request(ctx, "learn", types.IRLearn{Name: name, TimeoutMs: uint32(wait / time.Millisecond)}, nil); err != nil {
		return err
	}
	c.printf("listening for %s ...\n", name)

	// The device enforces the learn timeout; the extra second covers event latency.
	m, err := c.awaitEvent(ctx, ev, wait+time.Second, name, "learned", "learn_timeout", "error")
	if err != nil {
		return err
	}
	switch tag(m) {
	case "learned":
		var l types.IRLearned
		_ = decode(m.Payload, &l)
		c.printf("learned %s (%d samples)\n", l.Name, l.Size)
		return nil
	case "learn_timeout":
		c.printf("timeout\n")
		return nil
	default:
		return failure(m)
	}
}

func (c *Console) send(ctx context.Context, name string) error {
	ev := c.conn.Subscribe(hal.EventTopic(c.domain, types.KindIR, c.name, "+"))
	defer c.conn.Unsubscribe(ev)

	if err := c.request(ctx, "send", types.IRSend{Name: name}, nil); err != nil {
		return err
	}
	m, err := c.awaitEvent(ctx, ev, sendEventSlack, name, "sent", "error")
	if err != nil {
		return err
	}
	if tag(m) != "sent" {
		return failure(m)
	}
	var s types.IRSent
	_ = decode(m.Payload, &s)
	c.printf("sent %s (%d samples)\n", name, s.Size)
	return nil
}

func (c *Console) list(ctx context.Context) error {
	var l types.IRList
	if err := c.request(ctx, "list", nil, &l); err != nil {
		return err
	}
	if len(l.Names) == 0 {
		c.printf("no learned signals\n")
		return nil
	}
	for _, n := range l.Names {
		c.printf("  %s\n", n)
	}
	return nil
}

// request issues a control and decodes a non-error reply into out when set.
func (c *Console) request(ctx context.Context, verb string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	msg := c.conn.NewMessage(hal.CtrlTopic(c.domain, types.KindIR, c.name, verb), payload, false)
	rep, err := c.conn.RequestWait(ctx, msg)
	if err != nil {
		return err
	}
	if e, ok := rep.Payload.(types.ErrorReply); ok {
		return errors.New(e.Error)
	}
	if out != nil {
		return decode(rep.Payload, out)
	}
	return nil
}

// awaitEvent returns the first event with one of tags that concerns name.
func (c *Console) awaitEvent(ctx context.Context, sub *bus.Subscription, d time.Duration, name string, tags ...string) (*bus.Message, error) {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
			return nil, errors.New("no response from device")
		case m := <-sub.Channel():
			got := tag(m)
			for _, want := range tags {
				if got == want && eventName(m) == name {
					return m, nil
				}
			}
		}
	}
}

func (c *Console) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

func tag(m *bus.Message) string {
	s, _ := m.Topic.At(6).(string)
	return s
}

func eventName(m *bus.Message) string {
	var v struct {
		Name string `json:"name"`
	}
	_ = decode(m.Payload, &v)
	return v.Name
}

func failure(m *bus.Message) error {
	var f types.IRFailure
	_ = decode(m.Payload, &f)
	return errors.New(f.Error)
}

// decode copies a bus payload into out, whether it is already the target
// type or a generic JSON value.
func decode(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
