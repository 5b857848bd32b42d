// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rtmp_test

import (
	"errors"
	"testing"

	"github.com/rtmpkit/rtmp"
)

// testStream records the ID it was registered under.
type testStream struct {
	id uint32
}

func (s *testStream) SetStreamID(id uint32) { s.id = id }

func TestStreamRegistry(t *testing.T) {
	reg := rtmp.NewStreamRegistry()

	s := &testStream{id: 99}
	if err := reg.Register(3, s); err != nil {
		t.Fatalf("Register(3): unexpected error: %v", err)
	}
	if s.id != 3 {
		t.Errorf("Stream ID after Register: got %d, want 3", s.id)
	}
	if got, err := reg.Get(3); err != nil {
		t.Errorf("Get(3): unexpected error: %v", err)
	} else if got != s {
		t.Errorf("Get(3): got %v, want %v", got, s)
	}
	if reg.Len() != 1 {
		t.Errorf("Len: got %d, want 1", reg.Len())
	}

	if _, err := reg.Get(4); !errors.Is(err, rtmp.ErrUnknownStream) {
		t.Errorf("Get(4): got %v, want %v", err, rtmp.ErrUnknownStream)
	}
	if _, err := reg.Remove(4); !errors.Is(err, rtmp.ErrUnknownStream) {
		t.Errorf("Remove(4): got %v, want %v", err, rtmp.ErrUnknownStream)
	}

	if got, err := reg.Remove(3); err != nil {
		t.Errorf("Remove(3): unexpected error: %v", err)
	} else if got != s {
		t.Errorf("Remove(3): got %v, want %v", got, s)
	}
	if _, err := reg.Get(3); !errors.Is(err, rtmp.ErrUnknownStream) {
		t.Errorf("Get(3) after Remove: got %v, want %v", err, rtmp.ErrUnknownStream)
	}
}

func TestStreamRegistryRange(t *testing.T) {
	reg := rtmp.NewStreamRegistry()

	if err := reg.Register(rtmp.MaxStreams, &testStream{}); err != nil {
		t.Errorf("Register(MaxStreams): unexpected error: %v", err)
	}
	if err := reg.Register(rtmp.MaxStreams+1, &testStream{}); !errors.Is(err, rtmp.ErrStreamRange) {
		t.Errorf("Register(MaxStreams+1): got %v, want %v", err, rtmp.ErrStreamRange)
	}
}

func TestStreamRegistryNextID(t *testing.T) {
	reg := rtmp.NewStreamRegistry()
	register := func(ids ...uint32) {
		t.Helper()
		for _, id := range ids {
			if err := reg.Register(id, &testStream{}); err != nil {
				t.Fatalf("Register(%d): unexpected error: %v", id, err)
			}
		}
	}
	checkNext := func(want uint32) {
		t.Helper()
		got, ok := reg.NextID()
		if !ok {
			t.Fatal("NextID: no ID available")
		}
		if got != want {
			t.Errorf("NextID: got %d, want %d", got, want)
		}
	}

	checkNext(0) // empty registry

	register(0, 1, 2)
	checkNext(3) // dense prefix extends

	if _, err := reg.Remove(1); err != nil {
		t.Fatalf("Remove(1): unexpected error: %v", err)
	}
	checkNext(1) // freed IDs are reallocated first

	register(1)
	checkNext(3)
}

func TestStreamRegistryExhaustion(t *testing.T) {
	reg := rtmp.NewStreamRegistry()
	for id := uint32(0); id <= rtmp.MaxStreams; id++ {
		if err := reg.Register(id, &testStream{}); err != nil {
			t.Fatalf("Register(%d): unexpected error: %v", id, err)
		}
	}
	if id, ok := reg.NextID(); ok {
		t.Errorf("NextID on full registry: got %d, want exhaustion", id)
	}

	// Removing any stream restores capacity at exactly that ID.
	if _, err := reg.Remove(1234); err != nil {
		t.Fatalf("Remove(1234): unexpected error: %v", err)
	}
	if id, ok := reg.NextID(); !ok || id != 1234 {
		t.Errorf("NextID after Remove: got %d, %v; want 1234, true", id, ok)
	}
}
