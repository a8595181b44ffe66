package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tensord/pkg/types"
)

func singleTopo() *types.Topology {
	info := types.TensorInfo{Type: types.Float32, Dims: []int{2}}
	return &types.Topology{
		Kind:      types.KindSingle,
		ModelPath: "/models/m.tflite",
		Inputs:    []types.PortInfo{{Name: "in", Tensors: []types.TensorInfo{info}}},
		Outputs:   []types.PortInfo{{Name: "out", Tensors: []types.TensorInfo{info}}},
	}
}

func floatBatch(vals ...float32) types.Batch {
	return types.Batch{types.FromFloat32s(vals, len(vals))}
}

func TestFunc_EchoDefault(t *testing.T) {
	eng := &Func{}
	sess, err := eng.Open(context.Background(), singleTopo())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close()

	out, err := sess.Invoke(context.Background(), map[string]types.Batch{"in": floatBatch(1, 2)})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	got, err := out["out"][0].Float32s()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[0] != 1 || got[1] != 2 {
		t.Fatalf("echo output: %v", got)
	}
}

func TestFunc_CustomInvoke(t *testing.T) {
	eng := &Func{Invoke: func(inputs map[string]types.Batch) (map[string]types.Batch, error) {
		vals, err := inputs["in"][0].Float32s()
		if err != nil {
			return nil, err
		}
		for i := range vals {
			vals[i] += 2
		}
		return map[string]types.Batch{"out": floatBatch(vals...)}, nil
	}}
	sess, err := eng.Open(context.Background(), singleTopo())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err := sess.Invoke(context.Background(), map[string]types.Batch{"in": floatBatch(1, 5)})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	got, _ := out["out"][0].Float32s()
	if got[0] != 3 || got[1] != 7 {
		t.Fatalf("got %v", got)
	}
}

func TestFunc_RejectsOffloadTopology(t *testing.T) {
	eng := &Func{}
	_, err := eng.Open(context.Background(), &types.Topology{Kind: types.KindOffload})
	if err == nil {
		t.Fatal("expected error for offload topology")
	}
}

func TestFunc_ClosedSession(t *testing.T) {
	eng := &Func{}
	sess, err := eng.Open(context.Background(), singleTopo())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := sess.Invoke(context.Background(), nil); err == nil {
		t.Fatal("invoke after close must fail")
	}
}

func TestFunc_Signature(t *testing.T) {
	topo := singleTopo()
	eng := &Func{Signatures: map[string]ModelSignature{
		topo.ModelPath: {Inputs: topo.Inputs, Outputs: topo.Outputs},
	}}
	in, out, err := eng.Signature(topo.ModelPath)
	if err != nil {
		t.Fatalf("signature: %v", err)
	}
	if len(in) != 1 || len(out) != 1 {
		t.Fatalf("ports: %d in, %d out", len(in), len(out))
	}
	if _, _, err := eng.Signature("/models/unknown"); err == nil {
		t.Fatal("unknown model must fail")
	}
}

func TestFatal(t *testing.T) {
	base := fmt.Errorf("interpreter crashed")
	if !IsFatal(Fatal(base)) {
		t.Fatal("Fatal result not reported fatal")
	}
	if IsFatal(base) {
		t.Fatal("plain error reported fatal")
	}
	if IsFatal(nil) || Fatal(nil) != nil {
		t.Fatal("nil handling")
	}
	wrapped := fmt.Errorf("invoke: %w", Fatal(base))
	if !IsFatal(wrapped) {
		t.Fatal("fatal marker lost through wrapping")
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("cause lost through Fatal")
	}
}
