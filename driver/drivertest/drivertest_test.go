package drivertest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/engine/driver"
	"github.com/gogpu/gputypes"
)

func openDevice(t *testing.T) (*Driver, driver.Device) {
	t.Helper()
	drv := New()
	inst, err := drv.Open(driver.InstanceDesc{Validation: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	adapters, err := inst.Adapters(nil)
	if err != nil || len(adapters) != 1 {
		t.Fatalf("Adapters() = %d, %v", len(adapters), err)
	}
	dev, err := adapters[0].Open([]int{0})
	if err != nil {
		t.Fatalf("adapter Open() error = %v", err)
	}
	return drv, dev
}

func boundBuffer(t *testing.T, dev driver.Device, size int64, typ int) driver.Buffer {
	t.Helper()
	buf, err := dev.NewBuffer(size, gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	mem, err := dev.AllocateMemory(size, typ)
	if err != nil {
		t.Fatalf("AllocateMemory() error = %v", err)
	}
	if err := buf.Bind(mem); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	return buf
}

func TestInstanceLifetime(t *testing.T) {
	drv := New()
	inst, err := drv.Open(driver.InstanceDesc{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	surf, err := inst.CreateSurface(1, 2)
	if err != nil {
		t.Fatalf("CreateSurface() error = %v", err)
	}
	if got := drv.Stats().Live; got != 2 {
		t.Errorf("Live = %d, want 2", got)
	}
	surf.Destroy()
	inst.Destroy()
	if got := drv.Stats().Live; got != 0 {
		t.Errorf("Live after Destroy = %d, want 0", got)
	}
	inst.Destroy()
	if got := len(drv.Stats().Violations); got != 1 {
		t.Errorf("Violations after double destroy = %d, want 1", got)
	}
}

func TestMapLimit(t *testing.T) {
	cfg := DefaultAdapter()
	cfg.MapLimit = 4
	drv := New(cfg)
	inst, _ := drv.Open(driver.InstanceDesc{})
	adapters, _ := inst.Adapters(nil)
	dev, err := adapters[0].Open([]int{0})
	if err != nil {
		t.Fatalf("adapter Open() error = %v", err)
	}
	mem, err := dev.AllocateMemory(16, 1)
	if err != nil {
		t.Fatalf("AllocateMemory() error = %v", err)
	}
	data, err := mem.Map()
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if len(data) != 4 {
		t.Errorf("len(Map()) = %d, want 4", len(data))
	}
}

func TestCopyExecutesAtSubmit(t *testing.T) {
	drv, dev := openDevice(t)
	if !drv.Validation() {
		t.Error("Validation() = false, want true")
	}

	src := boundBuffer(t, dev, 8, 1)
	dst := boundBuffer(t, dev, 8, 0)
	copy(src.(*buffer).mem.data, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	cb, _ := dev.NewCmdBuffer()
	if err := cb.Begin(); err != nil {
		t.Fatal(err)
	}
	cb.CopyBuffer(src, dst, driver.BufferCopy{Size: 8})
	if err := cb.End(); err != nil {
		t.Fatal(err)
	}
	if got := Contents(dst); !bytes.Equal(got, make([]byte, 8)) {
		t.Fatalf("Contents() before submit = %v", got)
	}

	f, _ := dev.NewFence(false)
	if err := dev.Queue(0).Submit(driver.SubmitDesc{Cmds: []driver.CmdBuffer{cb}, Fence: f}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := Contents(dst); !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("Contents() = %v", got)
	}
	if s := drv.Stats(); s.Pending != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending)
	}
	if err := dev.Wait(f, 0); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if s := drv.Stats(); s.Pending != 0 || s.MaxPending != 1 {
		t.Errorf("Pending = %d, MaxPending = %d", s.Pending, s.MaxPending)
	}
}

func TestProtocolViolations(t *testing.T) {
	drv, dev := openDevice(t)

	f, _ := dev.NewFence(false)
	if err := dev.Wait(f, 0); !errors.Is(err, driver.ErrTimeout) {
		t.Errorf("Wait() on idle unsignaled fence = %v, want %v", err, driver.ErrTimeout)
	}

	cb, _ := dev.NewCmdBuffer()
	_ = cb.Begin()
	_ = cb.End()
	if err := dev.Queue(0).Submit(driver.SubmitDesc{Cmds: []driver.CmdBuffer{cb}, Fence: f}); err != nil {
		t.Fatal(err)
	}
	if err := cb.Reset(); err == nil {
		t.Error("Reset() of pending command buffer succeeded")
	}
	if err := dev.Reset(f); err == nil {
		t.Error("Reset() of pending fence succeeded")
	}

	cb.Destroy()
	cb.Destroy()

	if got := len(drv.Stats().Violations); got != 3 {
		t.Errorf("Violations = %v, want 3 entries", drv.Stats().Violations)
	}
}

func TestSwapchainRoundRobin(t *testing.T) {
	drv, dev := openDevice(t)
	sc, err := dev.NewSwapchain(driver.SwapchainDesc{
		Extent:     driver.Extent{Width: 64, Height: 64},
		ImageCount: 3,
	})
	if err != nil {
		t.Fatalf("NewSwapchain() error = %v", err)
	}
	sem, _ := dev.NewSemaphore()
	for want := 0; want < 4; want++ {
		idx, _, err := sc.Acquire(sem, 0)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if idx != want%3 {
			t.Errorf("Acquire() = %d, want %d", idx, want%3)
		}
		if err := dev.Queue(0).Present(driver.PresentDesc{Swapchain: sc, Index: idx, Wait: []driver.Semaphore{sem}}); err != nil {
			t.Fatalf("Present() error = %v", err)
		}
	}

	drv.ScriptPresent(driver.ErrSuboptimal)
	idx, _, _ := sc.Acquire(sem, 0)
	err = dev.Queue(0).Present(driver.PresentDesc{Swapchain: sc, Index: idx, Wait: []driver.Semaphore{sem}})
	if !errors.Is(err, driver.ErrSuboptimal) {
		t.Errorf("Present() = %v, want %v", err, driver.ErrSuboptimal)
	}
	if s := drv.Stats(); s.Presentations != 5 || s.Acquisitions != 5 {
		t.Errorf("Presentations = %d, Acquisitions = %d", s.Presentations, s.Acquisitions)
	}
}
