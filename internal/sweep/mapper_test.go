package sweep

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gridsweep/internal/engine"
	"gridsweep/internal/grid"
	"gridsweep/internal/result"
)

func TestJSONMapper(t *testing.T) {
	objectives := []grid.Objective{{Name: "torque"}, {Name: "losses.total"}, {Name: "ripple"}}
	mapper := JSONMapper(objectives)

	got, err := mapper(&engine.Payload{Data: []byte(`{"torque": 12.5, "losses": {"total": 3}, "ripple": null}`)})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if diff := cmp.Diff(result.Outcome{12.5, 3}, got[:2]); diff != "" {
		t.Fatalf("outcome mismatch (-want +got):\n%s", diff)
	}
	if !math.IsNaN(got[2]) {
		t.Fatalf("null objective should map to NaN, got %v", got[2])
	}
}

func TestJSONMapperFlatDottedKey(t *testing.T) {
	mapper := JSONMapper([]grid.Objective{{Name: "losses.total"}})
	got, err := mapper(&engine.Payload{Data: []byte(`{"losses.total": 7}`)})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if got[0] != 7 {
		t.Fatalf("got %v, want 7", got[0])
	}
}

func TestJSONMapperErrors(t *testing.T) {
	mapper := JSONMapper([]grid.Objective{{Name: "torque"}})
	cases := []struct {
		name string
		data string
	}{
		{"empty", ``},
		{"invalid", `{`},
		{"missing", `{"power": 1}`},
		{"not a number", `{"torque": "high"}`},
		{"error payload", `{"error": "mesh failed"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := mapper(&engine.Payload{Data: []byte(tc.data)}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	_, err := mapper(&engine.Payload{Data: []byte(`{"error": "mesh failed"}`)})
	if !errors.Is(err, ErrPayload) {
		t.Fatalf("expected ErrPayload, got %v", err)
	}
}

func TestStopFlag(t *testing.T) {
	var nilFlag *StopFlag
	nilFlag.Stop()
	if nilFlag.Stopped() {
		t.Fatalf("nil flag should never stop")
	}

	flag := &StopFlag{}
	if flag.Stopped() {
		t.Fatalf("zero flag should not be stopped")
	}
	flag.Stop()
	if !flag.Stopped() {
		t.Fatalf("flag should be stopped")
	}
	flag.Reset()
	if flag.Stopped() {
		t.Fatalf("flag should be reset")
	}
}
