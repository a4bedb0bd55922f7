package datedim

import (
	"context"
	"errors"
	"testing"
	"time"

	"stagingloader/internal/storage/storagetest"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	repo := &storagetest.Fake{
		DateKeysFn: func(ctx context.Context) (map[string]int64, error) {
			return map[string]int64{
				"2023-05-01": 20230501,
				"2023-05-02": 20230502,
			}, nil
		},
	}
	r, err := NewResolver(context.Background(), repo)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}

	sk, err := r.Resolve(time.Date(2023, 5, 1, 15, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sk != 20230501 {
		t.Fatalf("key = %d, want 20230501", sk)
	}

	// Resolution is on the UTC calendar date: 01:00+07:00 is still April 30 UTC.
	_, err = r.Resolve(time.Date(2023, 5, 1, 1, 0, 0, 0, time.FixedZone("ICT", 7*3600)))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if nf.Date != "2023-04-30" {
		t.Fatalf("NotFoundError.Date = %q, want 2023-04-30", nf.Date)
	}
}

func TestResolveOutsideRange(t *testing.T) {
	t.Parallel()

	repo := &storagetest.Fake{
		DateKeysFn: func(ctx context.Context) (map[string]int64, error) {
			return map[string]int64{}, nil
		},
	}
	r, err := NewResolver(context.Background(), repo)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	_, err = r.Resolve(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
}

func TestNewResolverPropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	repo := &storagetest.Fake{
		DateKeysFn: func(ctx context.Context) (map[string]int64, error) {
			return nil, boom
		},
	}
	if _, err := NewResolver(context.Background(), repo); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}
