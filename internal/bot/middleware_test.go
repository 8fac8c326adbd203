package bot

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	logx "calbot/pkg/logx"
)

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	mw := func(tag string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				calls = append(calls, tag+"-in")
				err := next(ctx, req)
				calls = append(calls, tag+"-out")
				return err
			}
		}
	}
	h := func(ctx context.Context, req *Request) error {
		calls = append(calls, "handler")
		return nil
	}

	if err := Chain(h, mw("outer"), mw("inner"))(context.Background(), &Request{}); err != nil {
		t.Fatalf("chain = %v", err)
	}
	want := []string{"outer-in", "inner-in", "handler", "inner-out", "outer-out"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestMWTimeout(t *testing.T) {
	t.Parallel()

	t.Run("sets deadline", func(t *testing.T) {
		t.Parallel()

		h := func(ctx context.Context, req *Request) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Fatalf("no deadline set")
			}
			return nil
		}
		if err := MWTimeout(time.Second)(h)(context.Background(), &Request{}); err != nil {
			t.Fatalf("handler = %v", err)
		}
	})

	t.Run("cancels slow handler", func(t *testing.T) {
		t.Parallel()

		h := func(ctx context.Context, req *Request) error {
			<-ctx.Done()
			return ctx.Err()
		}
		err := MWTimeout(30 * time.Millisecond)(h)(context.Background(), &Request{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want deadline exceeded", err)
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		t.Parallel()

		h := func(ctx context.Context, req *Request) error {
			if _, ok := ctx.Deadline(); ok {
				t.Fatalf("unexpected deadline")
			}
			return nil
		}
		if err := MWTimeout(0)(h)(context.Background(), &Request{}); err != nil {
			t.Fatalf("handler = %v", err)
		}
	})
}

func TestMWPanicRecover(t *testing.T) {
	t.Parallel()

	h := func(ctx context.Context, req *Request) error {
		panic("boom")
	}
	err := MWPanicRecover(logx.Nop())(h)(context.Background(), &Request{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want recovered panic", err)
	}

	// Plain errors pass through untouched.
	sentinel := errors.New("plain failure")
	h = func(ctx context.Context, req *Request) error { return sentinel }
	if err := MWPanicRecover(logx.Nop())(h)(context.Background(), &Request{}); !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want %v", err, sentinel)
	}
}

func TestMWRequestLogPassesErrorThrough(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("listing failed")
	h := func(ctx context.Context, req *Request) error { return sentinel }
	req := &Request{Log: logx.Nop()}
	if err := MWRequestLog()(h)(context.Background(), req); !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want %v", err, sentinel)
	}
}
