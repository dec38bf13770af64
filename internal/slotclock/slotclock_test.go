package slotclock

import (
	"errors"
	"testing"
	"time"
)

func TestSlotNow(t *testing.T) {
	if got := SlotNow(6000, time.UnixMilli(0)); got != 0 {
		t.Fatalf("SlotNow(genesis) = %d, want 0", got)
	}
	if got := SlotNow(6000, time.UnixMilli(6000)); got != 1 {
		t.Fatalf("SlotNow(6000ms) = %d, want 1", got)
	}
	if got := SlotNow(6000, time.UnixMilli(11999)); got != 1 {
		t.Fatalf("SlotNow(11999ms) = %d, want 1", got)
	}
	if got := SlotNow(0, time.UnixMilli(6000)); got != 0 {
		t.Fatalf("SlotNow(zero duration) = %d, want 0", got)
	}
}

func TestSlotClock_CurrentSlot(t *testing.T) {
	c := NewSlotClock(1_000_000, 6000)

	if got := c.CurrentSlot(time.UnixMilli(0)); got != 0 {
		t.Fatalf("CurrentSlot(before genesis) = %d, want 0", got)
	}
	if got := c.CurrentSlot(time.UnixMilli(1_000_000)); got != 0 {
		t.Fatalf("CurrentSlot(at genesis) = %d, want 0", got)
	}
	if got := c.CurrentSlot(time.UnixMilli(1_006_000)); got != 1 {
		t.Fatalf("CurrentSlot(one slot later) = %d, want 1", got)
	}
	if got := c.CurrentSlot(time.UnixMilli(1_030_000)); got != 5 {
		t.Fatalf("CurrentSlot(five slots later) = %d, want 5", got)
	}
}

func TestSlotClock_Monotonic(t *testing.T) {
	c := NewSlotClock(0, 2000)
	prev := c.CurrentSlot(time.UnixMilli(0))
	for ms := int64(0); ms <= 100_000; ms += 137 {
		s := c.CurrentSlot(time.UnixMilli(ms))
		if s < prev {
			t.Fatalf("slot went backwards at %dms: %d -> %d", ms, prev, s)
		}
		prev = s
	}
}

func TestSlotClock_SlotStartTimeRoundTrip(t *testing.T) {
	c := NewSlotClock(500, 6000)
	slot := SlotNumber(42)
	start := c.SlotStartTime(slot)
	if got := c.CurrentSlot(start); got != slot {
		t.Fatalf("CurrentSlot(SlotStartTime(%d)) = %d, want %d", slot, got, slot)
	}
	// One millisecond before the boundary still belongs to the prior slot.
	if got := c.CurrentSlot(start.Add(-time.Millisecond)); got != slot-1 {
		t.Fatalf("CurrentSlot(boundary-1ms) = %d, want %d", got, slot-1)
	}
}

func TestRemainingInSlot(t *testing.T) {
	info := SlotInfo{Slot: 1, Duration: 6000, StartTime: time.UnixMilli(6000)}

	if got := RemainingInSlot(info, time.UnixMilli(6000)); got != 6000*time.Millisecond {
		t.Fatalf("RemainingInSlot(at start) = %v, want 6s", got)
	}
	if got := RemainingInSlot(info, time.UnixMilli(9000)); got != 3000*time.Millisecond {
		t.Fatalf("RemainingInSlot(mid-slot) = %v, want 3s", got)
	}
	if got := RemainingInSlot(info, time.UnixMilli(20000)); got != 0 {
		t.Fatalf("RemainingInSlot(past deadline) = %v, want 0", got)
	}
}

type mapBundle map[string][]byte

func (m mapBundle) Get(id string) ([]byte, bool) { v, ok := m[id]; return v, ok }

func decodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errors.New("bad length")
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

func TestExtractTimestampAndSlot(t *testing.T) {
	bundle := mapBundle{
		InherentTimestamp: {0, 0, 0, 0, 0, 0, 0x17, 0x70},
		InherentSlot:      {0, 0, 0, 0, 0, 0, 0, 5},
	}
	ts, slot, err := ExtractTimestampAndSlot(bundle, decodeU64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != 0x1770 || slot != 5 {
		t.Fatalf("got ts=%d slot=%d, want ts=6000 slot=5", ts, slot)
	}
}

func TestExtractTimestampAndSlot_MissingInherent(t *testing.T) {
	_, _, err := ExtractTimestampAndSlot(mapBundle{}, decodeU64)
	if !errors.Is(err, ErrMissingInherent) {
		t.Fatalf("err = %v, want ErrMissingInherent", err)
	}

	partial := mapBundle{InherentTimestamp: {0, 0, 0, 0, 0, 0, 0, 1}}
	_, _, err = ExtractTimestampAndSlot(partial, decodeU64)
	if !errors.Is(err, ErrMissingInherent) {
		t.Fatalf("err = %v, want ErrMissingInherent for missing slot id", err)
	}
}

func TestSchedule_DurationAtSlot(t *testing.T) {
	s := NewSchedule(0, 6000)
	if err := s.AddFork(100, 3000); err != nil {
		t.Fatalf("AddFork: %v", err)
	}
	if err := s.AddFork(200, 2000); err != nil {
		t.Fatalf("AddFork: %v", err)
	}

	cases := []struct {
		slot SlotNumber
		want SlotDuration
	}{
		{0, 6000},
		{99, 6000},
		{100, 3000},
		{199, 3000},
		{200, 2000},
		{1000, 2000},
	}
	for _, c := range cases {
		if got := s.DurationAtSlot(c.slot); got != c.want {
			t.Fatalf("DurationAtSlot(%d) = %d, want %d", c.slot, got, c.want)
		}
	}
}

func TestSchedule_AddFork_RejectsNonIncreasing(t *testing.T) {
	s := NewSchedule(0, 6000)
	if err := s.AddFork(100, 3000); err != nil {
		t.Fatalf("AddFork: %v", err)
	}
	if err := s.AddFork(100, 2000); err == nil {
		t.Fatal("AddFork with non-increasing activation slot should fail")
	}
	if err := s.AddFork(50, 2000); err == nil {
		t.Fatal("AddFork with activation slot before previous fork should fail")
	}
}

func TestSchedule_AddFork_RejectsZeroDuration(t *testing.T) {
	s := NewSchedule(0, 6000)
	if err := s.AddFork(100, 0); err == nil {
		t.Fatal("AddFork with zero duration should fail")
	}
}
