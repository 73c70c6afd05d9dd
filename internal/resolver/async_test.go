package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maraichr/sqlscope/internal/catalog"
	"github.com/maraichr/sqlscope/internal/catalog/memory"
)

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
	var zero T
	return zero
}

type objResult struct {
	obj *catalog.Object
	err error
}

func TestResolveTableAsync(t *testing.T) {
	_, conn := fixture(t)
	e := NewEngine(Options{}, nil)

	tests := []struct {
		ref     string
		wantErr error
	}{
		{"Staff", nil},
		{"Missing", ErrNotFound},
		{"Broken.dbo.Foo", ErrLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			ch := make(chan objResult, 2)
			e.ResolveTableAsync(context.Background(), tt.ref, conn, nil, func(obj *catalog.Object, err error) {
				ch <- objResult{obj, err}
			})
			r := wait(t, ch)
			if tt.wantErr == nil {
				if r.err != nil || r.obj == nil {
					t.Fatalf("got %v, %v", r.obj, r.err)
				}
				return
			}
			if r.obj != nil || !errors.Is(r.err, tt.wantErr) {
				t.Errorf("got %v, %v; want nil, %v", r.obj, r.err, tt.wantErr)
			}
		})
	}
}

func TestResolveTableAsyncTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	srv := memory.NewServer("s", "sqlserver")
	slow := srv.AddDatabase(memory.NewDatabase("slow", func(context.Context, *memory.Database) error {
		<-release
		return nil
	}))
	conn := &catalog.Connection{Server: srv, Database: slow}
	e := NewEngine(Options{Timeout: 20 * time.Millisecond}, nil)

	ch := make(chan objResult, 2)
	e.ResolveTableAsync(context.Background(), "anything", conn, nil, func(obj *catalog.Object, err error) {
		ch <- objResult{obj, err}
	})
	r := wait(t, ch)
	if r.obj != nil || !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("got %v, %v; want nil, ErrTimeout", r.obj, r.err)
	}
	select {
	case extra := <-ch:
		t.Errorf("callback fired twice: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGetColumnsAsync(t *testing.T) {
	_, conn := fixture(t)
	e := NewEngine(Options{}, nil)
	obj := e.ResolveTable(context.Background(), "dbo.Orders", conn, nil)

	type result struct {
		cols []catalog.Column
		err  error
	}
	ch := make(chan result, 2)
	e.GetColumnsAsync(context.Background(), obj, conn, func(cols []catalog.Column, err error) {
		ch <- result{cols, err}
	})
	r := wait(t, ch)
	if r.err != nil || len(r.cols) != 3 {
		t.Fatalf("got %v, %v", r.cols, r.err)
	}

	e.GetColumnsAsync(context.Background(), nil, conn, func(cols []catalog.Column, err error) {
		ch <- result{cols, err}
	})
	r = wait(t, ch)
	if r.cols != nil || !errors.Is(r.err, ErrNotFound) {
		t.Errorf("nil object: got %v, %v", r.cols, r.err)
	}
}

func TestPreResolveScopeAsyncFiresOnceAfterAll(t *testing.T) {
	const n = 24
	srv := memory.NewServer("s", "sqlserver")
	db := srv.AddDatabase(memory.NewDatabase("d", nil))
	aliases := make(map[string]string, n)
	for i := range n {
		name := fmt.Sprintf("t%d", i)
		target := &catalog.Object{Name: name, Schema: "dbo", Database: "d", Kind: catalog.KindTable}
		// random delays shuffle completion order
		delay := time.Duration(rand.IntN(5)) * time.Millisecond
		db.Add(&catalog.Object{
			Name:   name,
			Schema: "dbo",
			Kind:   catalog.KindSynonym,
			Resolve: func(context.Context) (*catalog.Object, error) {
				time.Sleep(delay)
				return target, nil
			},
		})
		aliases[fmt.Sprintf("a%d", i)] = name
	}
	conn := &catalog.Connection{Server: srv, Database: db}
	sctx := &SQLContext{Aliases: aliases}
	e := NewEngine(Options{MaxParallel: 4}, nil)

	var fired atomic.Int32
	results := make(chan int, 4)
	e.PreResolveScopeAsync(context.Background(), sctx, conn, func(rs *ResolvedScope, err error) {
		fired.Add(1)
		if err != nil {
			t.Errorf("aggregate error: %v", err)
		}
		results <- len(rs.Results())
	})

	if got := wait(t, results); got != n {
		t.Errorf("aggregate fired after %d of %d resolutions", got, n)
	}
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("aggregate fired %d times", fired.Load())
	}
	if got := len(sctx.Resolved.Aliases()); got != n {
		t.Errorf("resolved aliases = %d, want %d", got, n)
	}
}

func TestPreResolveScopeAsyncEmpty(t *testing.T) {
	e := NewEngine(Options{}, nil)
	ch := make(chan *ResolvedScope, 2)
	e.PreResolveScopeAsync(context.Background(), &SQLContext{}, nil, func(rs *ResolvedScope, err error) {
		ch <- rs
	})
	if rs := wait(t, ch); rs == nil || len(rs.Results()) != 0 {
		t.Errorf("empty scope = %v", rs)
	}
}

func TestCompletionDeliversOnce(t *testing.T) {
	var calls int
	c := &completion[int]{fn: func(int, error) { calls++ }}
	if !c.deliver(1, nil) {
		t.Fatal("first delivery refused")
	}
	if c.deliver(2, errors.New("late")) {
		t.Error("second delivery accepted")
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}
