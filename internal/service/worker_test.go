package service

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tensord/internal/engine"
	"tensord/pkg/status"
	"tensord/pkg/types"
)

// plusTwoEngine adds 2.0 to every element of the "in" batch.
func plusTwoEngine() *engine.Func {
	return &engine.Func{Invoke: func(inputs map[string]types.Batch) (map[string]types.Batch, error) {
		vals, err := inputs["in"][0].Float32s()
		if err != nil {
			return nil, err
		}
		for i := range vals {
			vals[i] += 2
		}
		return map[string]types.Batch{"out": floatBatch(vals...)}, nil
	}}
}

func TestSubmit_Validation(t *testing.T) {
	r := newTestRegistry(&engine.Func{})
	h, err := r.CreateFromConfig(singleFile(t, nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Request(h, "", nil); status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("empty batch: %v", err)
	}
	if err := r.Request(h, "bogus", floatBatch(1, 2)); !status.IsInvalidPort(err) {
		t.Fatalf("unknown port: %v", err)
	}
	if err := r.Request(h, "out", floatBatch(1, 2)); !status.IsInvalidPort(err) {
		t.Fatalf("output port: %v", err)
	}
	// wrong shape: port declares float32[2]
	if err := r.Request(h, "in", floatBatch(1, 2, 3)); status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("wrong shape: %v", err)
	}
	// wrong tensor count
	two := types.Batch{types.FromFloat32s([]float32{1, 2}, 2), types.FromFloat32s([]float32{3, 4}, 2)}
	if err := r.Request(h, "in", two); status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("tensor count: %v", err)
	}
}

func TestSubmit_BackpressureBoundary(t *testing.T) {
	r := newTestRegistry(&engine.Func{})
	// the handle is never started, so nothing drains the queue
	h, err := r.CreateFromConfig(singleFile(t, map[string]string{PropMaxInput: "3"}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := r.Request(h, "", floatBatch(1, 2)); err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
	}
	err = r.Request(h, "", floatBatch(1, 2))
	if !status.IsBackpressure(err) {
		t.Fatalf("submission at capacity: %v", err)
	}
	if !status.Retryable(err) {
		t.Fatal("backpressure must be retryable")
	}
	if snap, _ := r.Snapshot(h); snap.QueueDepths["in"] != 3 {
		t.Fatalf("rejected submission changed the queue: %+v", snap.QueueDepths)
	}
	// raising the bound re-admits immediately
	if err := r.SetInformation(h, PropMaxInput, "5"); err != nil {
		t.Fatalf("raise bound: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := r.Request(h, "", floatBatch(1, 2)); err != nil {
			t.Fatalf("submission after raise %d: %v", i, err)
		}
	}
	if err := r.Request(h, "", floatBatch(1, 2)); !status.IsBackpressure(err) {
		t.Fatalf("submission at raised capacity: %v", err)
	}
}

func TestRequest_EndToEndFIFO(t *testing.T) {
	r := newTestRegistry(plusTwoEngine())
	h, err := r.CreateFromConfig(singleFile(t, nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := newCollector()
	if err := r.SetEventCallback(h, c.callback); err != nil {
		t.Fatalf("set callback: %v", err)
	}
	if err := r.Start(h); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := r.Request(h, "", floatBatch(float32(i), float32(i)+0.5)); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	for i := 0; i < 5; i++ {
		ev := c.next(t)
		if ev.Kind != types.EventNewData || ev.Port != "out" || ev.Err != nil {
			t.Fatalf("event %d: %+v", i, ev)
		}
		got, err := ev.Tensors[0].Float32s()
		if err != nil {
			t.Fatalf("decode event %d: %v", i, err)
		}
		if got[0] != float32(i)+2 || got[1] != float32(i)+2.5 {
			t.Fatalf("event %d out of order or wrong: %v", i, got)
		}
	}
	if err := r.Destroy(h); err != nil {
		t.Fatalf("destroy: %v", err)
	}
}

func TestRequest_QueuedBeforeStartDrains(t *testing.T) {
	r := newTestRegistry(plusTwoEngine())
	h, err := r.CreateFromConfig(singleFile(t, nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := newCollector()
	if err := r.SetEventCallback(h, c.callback); err != nil {
		t.Fatalf("set callback: %v", err)
	}
	// accepted while Created, drained once Running
	if err := r.Request(h, "", floatBatch(1, 1)); err != nil {
		t.Fatalf("request before start: %v", err)
	}
	select {
	case ev := <-c.ch:
		t.Fatalf("event before start: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if err := r.Start(h); err != nil {
		t.Fatalf("start: %v", err)
	}
	ev := c.next(t)
	got, _ := ev.Tensors[0].Float32s()
	if got[0] != 3 {
		t.Fatalf("drained result: %v", got)
	}
}

func TestRequest_NonFatalFailureKeepsDraining(t *testing.T) {
	var calls atomic.Int32
	eng := &engine.Func{Invoke: func(inputs map[string]types.Batch) (map[string]types.Batch, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient operator failure")
		}
		vals, _ := inputs["in"][0].Float32s()
		return map[string]types.Batch{"out": floatBatch(vals...)}, nil
	}}
	r := newTestRegistry(eng)
	h, err := r.CreateFromConfig(singleFile(t, nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := newCollector()
	_ = r.SetEventCallback(h, c.callback)
	if err := r.Start(h); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Request(h, "", floatBatch(1, 2)); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := r.Request(h, "", floatBatch(3, 4)); err != nil {
		t.Fatalf("second request: %v", err)
	}
	// the failure is attached to the first event
	first := c.next(t)
	if first.Err == nil {
		t.Fatalf("first event carries no error: %+v", first)
	}
	second := c.next(t)
	if second.Err != nil {
		t.Fatalf("second event failed: %v", second.Err)
	}
	got, _ := second.Tensors[0].Float32s()
	if got[0] != 3 || got[1] != 4 {
		t.Fatalf("second result: %v", got)
	}
	if st, _ := r.State(h); st != StateRunning {
		t.Fatalf("non-fatal failure changed state: %s", st)
	}
}

func TestRequest_FatalFailureStopsHandle(t *testing.T) {
	eng := &engine.Func{Invoke: func(map[string]types.Batch) (map[string]types.Batch, error) {
		return nil, engine.Fatal(errors.New("interpreter crashed"))
	}}
	r := newTestRegistry(eng)
	h, err := r.CreateFromConfig(singleFile(t, nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := newCollector()
	_ = r.SetEventCallback(h, c.callback)
	if err := r.Start(h); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Request(h, "", floatBatch(1, 2)); err != nil {
		t.Fatalf("request: %v", err)
	}
	waitState(t, r, h, StateStopped)
	if err := r.Request(h, "", floatBatch(1, 2)); !status.IsStopped(err) {
		t.Fatalf("request after fatal failure: %v", err)
	}
	// the failed batch produces no event
	select {
	case ev := <-c.ch:
		t.Fatalf("unexpected event after fatal failure: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCallback_ClearStopsDelivery(t *testing.T) {
	r := newTestRegistry(plusTwoEngine())
	h, err := r.CreateFromConfig(singleFile(t, nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := newCollector()
	_ = r.SetEventCallback(h, c.callback)
	if err := r.Request(h, "", floatBatch(1, 1)); err != nil {
		t.Fatalf("request: %v", err)
	}
	// clear before the worker ever runs: the queued result must not deliver
	if err := r.SetEventCallback(h, nil); err != nil {
		t.Fatalf("clear callback: %v", err)
	}
	if err := r.Start(h); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case ev := <-c.ch:
		t.Fatalf("delivery after clear: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCallback_SwapReplacesReceiver(t *testing.T) {
	r := newTestRegistry(plusTwoEngine())
	h, err := r.CreateFromConfig(singleFile(t, nil))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	old := newCollector()
	_ = r.SetEventCallback(h, old.callback)
	repl := newCollector()
	if err := r.SetEventCallback(h, repl.callback); err != nil {
		t.Fatalf("swap callback: %v", err)
	}
	if err := r.Start(h); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Request(h, "", floatBatch(1, 1)); err != nil {
		t.Fatalf("request: %v", err)
	}
	ev := repl.next(t)
	if ev.Port != "out" {
		t.Fatalf("replacement event: %+v", ev)
	}
	select {
	case ev := <-old.ch:
		t.Fatalf("old callback still receiving: %+v", ev)
	default:
	}
}

func TestPipeline_RequestByNodeName(t *testing.T) {
	eng := &engine.Func{Invoke: func(inputs map[string]types.Batch) (map[string]types.Batch, error) {
		return map[string]types.Batch{"sink": inputs["src"].Clone()}, nil
	}}
	r := newTestRegistry(eng)
	h, err := r.CreateFromConfig(pipelineFile())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c := newCollector()
	_ = r.SetEventCallback(h, c.callback)
	if err := r.Start(h); err != nil {
		t.Fatalf("start: %v", err)
	}
	// a single-source pipeline also accepts the unnamed default at submit
	if err := r.Request(h, "", floatBatch(7, 8)); err != nil {
		t.Fatalf("unnamed request: %v", err)
	}
	ev := c.next(t)
	if ev.Port != "sink" || ev.Node != "sink" {
		t.Fatalf("pipeline event: %+v", ev)
	}
	got, _ := ev.Tensors[0].Float32s()
	if got[0] != 7 || got[1] != 8 {
		t.Fatalf("pipeline result: %v", got)
	}
}
