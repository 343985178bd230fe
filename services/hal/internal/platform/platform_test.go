//go:build !rp2040

package platform

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"irlearn-go/errcode"
	"irlearn-go/services/hal/internal/core"
	"irlearn-go/x/kvstore"
)

func TestClaimsAreExclusive(t *testing.T) {
	r, _ := NewHost()

	if _, err := r.ClaimGPIO("ir0", 4); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Same owner may claim again.
	if _, err := r.ClaimGPIO("ir0", 4); err != nil {
		t.Fatalf("re-claim by owner: %v", err)
	}
	if _, err := r.ClaimPWM("ir1", 4); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("want PinInUse, got %v", err)
	}
	r.ReleasePin("ir1", 4) // not the owner; ignored
	if _, err := r.ClaimGPIO("ir1", 4); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("release by non-owner freed the pin: %v", err)
	}
	r.ReleasePin("ir0", 4)
	if _, err := r.ClaimGPIO("ir1", 4); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	if _, err := r.ClaimGPIO("ir1", -1); !errors.Is(err, errcode.UnknownPin) {
		t.Fatalf("want UnknownPin, got %v", err)
	}
}

func TestFakePin_IRQOnBothEdges(t *testing.T) {
	_, pins := NewHost()
	p := pins.Pin(3)
	_ = p.ConfigureInput(core.PullUp)

	var n atomic.Int32
	_ = p.SetIRQ(core.EdgeBoth, func() { n.Add(1) })

	p.Set(false)
	p.Set(false) // no edge
	p.Set(true)
	if got := n.Load(); got != 2 {
		t.Fatalf("irq count = %d, want 2", got)
	}

	_ = p.ClearIRQ()
	p.Set(false)
	if got := n.Load(); got != 2 {
		t.Fatalf("irq after clear: %d", got)
	}
}

func TestFakePin_PlayProducesOneEdgePerBoundary(t *testing.T) {
	_, pins := NewHost()
	p := pins.Pin(3)
	_ = p.ConfigureInput(core.PullUp)

	var n atomic.Int32
	_ = p.SetIRQ(core.EdgeBoth, func() { n.Add(1) })

	select {
	case <-p.Play([]uint16{100, 200, 300}):
	case <-time.After(time.Second):
		t.Fatal("play did not finish")
	}
	if got := n.Load(); got != 4 {
		t.Fatalf("edges = %d, want 4", got)
	}
	if !p.Get() {
		t.Fatal("line should end idle high")
	}
}

func TestOpenStore_Kinds(t *testing.T) {
	r, _ := NewHost()

	m, err := r.OpenStore("ir0", "mem", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Put("k", []byte{1}); err != nil {
		t.Fatal(err)
	}

	if _, err := r.OpenStore("ir0", "tape", ""); !errors.Is(err, ErrStoreKind) {
		t.Fatalf("want ErrStoreKind, got %v", err)
	}
	if _, err := r.OpenStore("ir0", "file", ""); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("file without path: %v", err)
	}

	path := filepath.Join(t.TempDir(), "ir.kv")
	f, err := r.OpenStore("ir0", "file", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Put("ir_tv", []byte{9, 0}); err != nil {
		t.Fatal(err)
	}
	c, ok := f.(io.Closer)
	if !ok {
		t.Fatal("file store should be closable")
	}
	_ = c.Close()

	f2, err := r.OpenStore("ir0", "file", path)
	if err != nil {
		t.Fatal(err)
	}
	defer f2.(io.Closer).Close()
	got, err := f2.Get("ir_tv")
	if err != nil || !bytes.Equal(got, []byte{9, 0}) {
		t.Fatalf("reopen: %v %v", got, err)
	}
}

func TestOpenStore_EEPROMIsShared(t *testing.T) {
	r, _ := NewHost()

	a, err := r.OpenStore("ir0", "eeprom", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.OpenStore("ir1", "eeprom", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Put("ir_on", []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	got, err := b.Get("ir_on")
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("shared store: %v %v", got, err)
	}
	if _, ok := a.(io.Closer); ok {
		t.Fatal("a shared volume must not be closable by one device")
	}
}

func TestOpenStore_Flash(t *testing.T) {
	r, _ := NewHost()
	if _, err := r.OpenStore("ir0", "flash", ""); !errors.Is(err, errcode.Unsupported) {
		t.Fatalf("flash without a device: %v", err)
	}

	r.UseFlash(kvstore.Blocks{Medium: kvstore.NewBuffer(32 * 1024)})
	a, err := r.OpenStore("ir0", "flash", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Put("ir_off", []byte{5, 6}); err != nil {
		t.Fatal(err)
	}
	b, err := r.OpenStore("ir1", "flash", "")
	if err != nil {
		t.Fatal(err)
	}
	if keys := b.Keys(); len(keys) != 1 || keys[0] != "ir_off" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestFakePWM_CountsMarks(t *testing.T) {
	r, _ := NewHost()
	h, err := r.ClaimPWM("ir0", 5)
	if err != nil {
		t.Fatal(err)
	}
	_ = h.Configure(38000)
	h.Enable(true)
	h.Enable(true)
	h.Enable(false)
	h.Enable(true)

	c := h.(*FakePWM)
	if c.Hz != 38000 || c.Marks != 2 || !c.On {
		t.Fatalf("unexpected carrier state %+v", c)
	}
}
