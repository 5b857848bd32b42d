// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rtmp

import (
	"fmt"
	"sort"
)

// A StreamRegistry tracks the logical streams multiplexed over one
// connection, mapping stream IDs to stream objects and allocating the lowest
// free ID for new streams.
//
// A registry is exclusively owned by one connection and, like the connection
// itself, is confined to the connection's single event goroutine.
type StreamRegistry struct {
	streams map[uint32]Stream
}

// NewStreamRegistry constructs an empty stream registry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{streams: make(map[uint32]Stream)}
}

// Len reports the number of active streams.
func (r *StreamRegistry) Len() int { return len(r.streams) }

// Register stores s under id, marks the ID active, and stamps s with its ID.
// It reports ErrStreamRange if id is outside [0, MaxStreams].
func (r *StreamRegistry) Register(id uint32, s Stream) error {
	if id > MaxStreams {
		return fmt.Errorf("%w (got %d)", ErrStreamRange, id)
	}
	r.streams[id] = s
	s.SetStreamID(id)
	connMetrics.streamActive.Add(1)
	return nil
}

// Get returns the stream registered under id, or ErrUnknownStream.
func (r *StreamRegistry) Get(id uint32) (Stream, error) {
	s, ok := r.streams[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownStream, id)
	}
	return s, nil
}

// Remove deletes and returns the stream registered under id, making the ID
// eligible for reallocation. It reports ErrUnknownStream if no stream is
// registered under id.
func (r *StreamRegistry) Remove(id uint32) (Stream, error) {
	s, ok := r.streams[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownStream, id)
	}
	delete(r.streams, id)
	connMetrics.streamActive.Add(-1)
	return s, nil
}

// NextID returns the smallest stream ID not currently active, keeping the ID
// space dense. It reports false once the whole ID space is active.
func (r *StreamRegistry) NextID() (uint32, bool) {
	if len(r.streams) > MaxStreams {
		return 0, false // all of [0, MaxStreams] is in use
	}

	ids := make([]int, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	// The first position whose stored ID differs from its index is a gap;
	// with no gap, the next free ID is the count of active streams.
	for i, id := range ids {
		if i != id {
			return uint32(i), true
		}
	}
	return uint32(len(ids)), true
}
