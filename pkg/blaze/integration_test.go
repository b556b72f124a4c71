package blaze_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/blaze/internal/testutil"
	"github.com/starford/blaze/pkg/blaze"
)

type user struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestEmulatorCRUDRoundtrip(t *testing.T) {
	root, _ := testutil.StartEmulator(t, "")
	ctx := context.Background()

	ref := root.At("users").At("u1")
	if _, err := ref.Set(ctx, user{Name: "Ada", Age: 36}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := blaze.GetAs[user](ctx, ref)
	if err != nil {
		t.Fatalf("GetAs: %v", err)
	}
	if got.Name != "Ada" || got.Age != 36 {
		t.Errorf("user = %+v", got)
	}

	if _, err := ref.Update(ctx, map[string]any{"age": 37}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = blaze.GetAs[user](ctx, ref)
	if err != nil {
		t.Fatalf("GetAs after update: %v", err)
	}
	if got.Name != "Ada" || got.Age != 37 {
		t.Errorf("user after update = %+v", got)
	}

	if _, err := ref.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ref.Get(ctx); !errors.Is(err, blaze.ErrNotFoundOrNull) {
		t.Errorf("Get after delete = %v, want ErrNotFoundOrNull", err)
	}
}

func TestEmulatorPush(t *testing.T) {
	root, _ := testutil.StartEmulator(t, "")
	ctx := context.Background()

	items := root.At("items")
	resp, err := items.Push(ctx, map[string]any{"label": "first"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	var out struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
		t.Fatalf("decode push response: %v", err)
	}
	if out.Name == "" {
		t.Fatalf("push response = %q, missing generated key", resp.Body)
	}

	child, err := blaze.GetAs[map[string]any](ctx, items.At(out.Name))
	if err != nil {
		t.Fatalf("GetAs: %v", err)
	}
	if child["label"] != "first" {
		t.Errorf("child = %v", child)
	}
}

func TestEmulatorQuery(t *testing.T) {
	root, tree := testutil.StartEmulator(t, "")
	tree.Put("scores", map[string]any{
		"a": float64(30),
		"b": float64(10),
		"c": float64(20),
	})

	ref := root.At("scores").WithQuery().OrderBy("$value").LimitToFirst(2).Finish()
	got, err := blaze.GetAs[map[string]int](context.Background(), ref)
	if err != nil {
		t.Fatalf("GetAs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("result = %v, want two entries", got)
	}
	if _, ok := got["a"]; ok {
		t.Errorf("result = %v, highest score should be trimmed", got)
	}
}

func TestEmulatorConcurrentCounters(t *testing.T) {
	root, tree := testutil.StartEmulator(t, "")
	tree.Put("counter", float64(0))

	const writers = 16
	counter := root.At("counter")

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := counter.ApplyDelta(context.Background(), 1)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	resp, err := counter.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, err := strconv.ParseInt(resp.Body, 10, 64)
	if err != nil {
		t.Fatalf("parse %q: %v", resp.Body, err)
	}
	if n != writers {
		t.Errorf("counter = %d, want %d (no lost updates)", n, writers)
	}
}

func TestEmulatorCounterBound(t *testing.T) {
	root, tree := testutil.StartEmulator(t, "")
	tree.Put("slots", float64(2))

	slots := root.At("slots")
	ctx := context.Background()

	if _, err := slots.ApplyDelta(ctx, 1, blaze.WithMax(3)); err != nil {
		t.Fatalf("first increment: %v", err)
	}
	if _, err := slots.ApplyDelta(ctx, 1, blaze.WithMax(3)); !errors.Is(err, blaze.ErrLimitExceeded) {
		t.Errorf("error = %v, want ErrLimitExceeded at the cap", err)
	}
}

func TestEmulatorStream(t *testing.T) {
	root, tree := testutil.StartEmulator(t, "")
	tree.Put("rooms/r1", map[string]any{"topic": "go"})

	s, err := root.At("rooms").Stream(context.Background(), false)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	ev, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv initial: %v", err)
	}
	if ev.Type != "put" {
		t.Fatalf("initial event = %+v, want put", ev)
	}
	var initial struct {
		Path string         `json:"path"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(ev.Data), &initial); err != nil {
		t.Fatalf("decode initial payload: %v", err)
	}
	if initial.Path != "/" {
		t.Errorf("initial path = %q, want /", initial.Path)
	}
	if _, ok := initial.Data["r1"]; !ok {
		t.Errorf("initial data = %v, missing snapshot", initial.Data)
	}

	// The server registers the stream with its broker right after the
	// initial frame; give it a moment before writing.
	time.Sleep(100 * time.Millisecond)

	if _, err := root.At("rooms").At("r2").Set(context.Background(), map[string]any{"topic": "sse"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ev, err = s.Recv()
	if err != nil {
		t.Fatalf("Recv live: %v", err)
	}
	if ev.Type != "put" {
		t.Errorf("live event type = %q, want put", ev.Type)
	}
	var live struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(ev.Data), &live); err != nil {
		t.Fatalf("decode live payload: %v", err)
	}
	if live.Path != "/r2" {
		t.Errorf("live path = %q, want /r2", live.Path)
	}
}

func TestEmulatorAuth(t *testing.T) {
	root, tree := testutil.StartEmulator(t, "sekrit")
	tree.Put("v", float64(1))

	// The returned reference already carries the auth parameter.
	resp, err := root.At("v").Get(context.Background())
	if err != nil {
		t.Fatalf("authorized Get: %v", err)
	}
	if resp.Body != "1" {
		t.Errorf("body = %q, want 1", resp.Body)
	}
}
