// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rpc

import "expvar"

// callMetrics record call activity counters, shared by all registries in
// the process.
type callMetrics struct {
	callOut        expvar.Int // number of outbound calls initiated
	callOutErr     expvar.Int // number of outbound calls reporting an error
	callPending    expvar.Int // outbound calls awaiting a response
	callIn         expvar.Int // number of inbound calls received
	callInErr      expvar.Int // number of inbound calls reporting an error
	responseOrphan expvar.Int // responses that matched no active call

	emap *expvar.Map
}

var rpcMetrics = newCallMetrics()

func newCallMetrics() *callMetrics {
	cm := &callMetrics{emap: new(expvar.Map)}
	cm.emap.Set("calls_out", &cm.callOut)
	cm.emap.Set("calls_out_failed", &cm.callOutErr)
	cm.emap.Set("calls_pending", &cm.callPending)
	cm.emap.Set("calls_in", &cm.callIn)
	cm.emap.Set("calls_in_failed", &cm.callInErr)
	cm.emap.Set("responses_orphaned", &cm.responseOrphan)
	return cm
}

// Metrics returns the call activity counters. It is safe for the caller to
// add additional metrics to the map.
func Metrics() *expvar.Map { return rpcMetrics.emap }
