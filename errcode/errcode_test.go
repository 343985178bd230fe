package errcode

import (
	"errors"
	"fmt"
	"testing"
)

var errDriver = errors.New("drv: absent")

func TestOf(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, OK},
		{Timeout, Timeout},
		{fmt.Errorf("wrapped: %w", Busy), Busy},
		{&E{C: Absent, Op: "load"}, Absent},
		{Wrap(Config, "begin", errDriver), Config},
		{errors.New("plain"), Error},
	}
	for _, c := range cases {
		if got := Of(c.err); got != c.want {
			t.Fatalf("Of(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestMapDriverErr(t *testing.T) {
	table := []Mapping{{Err: errDriver, Code: Absent}}

	if got := MapDriverErr(fmt.Errorf("load ir_on: %w", errDriver), table...); got != Absent {
		t.Fatalf("got %q, want %q", got, Absent)
	}
	if got := MapDriverErr(NotAvailable, table...); got != NotAvailable {
		t.Fatalf("got %q, want %q", got, NotAvailable)
	}
	if got := MapDriverErr(nil, table...); got != OK {
		t.Fatalf("got %q, want ok", got)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Config, "op", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	err := Wrap(ShortWrite, "save", errDriver)
	if !errors.Is(err, errDriver) {
		t.Fatal("Wrap should keep the cause")
	}
	if err.Error() != "short_write: drv: absent" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
