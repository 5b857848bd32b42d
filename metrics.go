// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rtmp

import "expvar"

// engineMetrics record connection and stream activity counters, shared by
// all connections in the process.
type engineMetrics struct {
	connActive     expvar.Int // connections currently established
	handshakeFail  expvar.Int // number of failed handshakes
	messageDropped expvar.Int // messages routed to a stream that drops them
	streamActive   expvar.Int // streams currently registered

	emap *expvar.Map
}

var connMetrics = newEngineMetrics()

func newEngineMetrics() *engineMetrics {
	em := &engineMetrics{emap: new(expvar.Map)}
	em.emap.Set("conns_active", &em.connActive)
	em.emap.Set("handshakes_failed", &em.handshakeFail)
	em.emap.Set("messages_dropped", &em.messageDropped)
	em.emap.Set("streams_active", &em.streamActive)
	return em
}

// Metrics returns the connection activity counters. It is safe for the
// caller to add additional metrics to the map.
func Metrics() *expvar.Map { return connMetrics.emap }
