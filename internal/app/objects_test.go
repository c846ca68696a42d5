package app

import (
	"context"
	"io"
	"sync"
	"time"
)

// testObjects is an in-memory ObjectStore for exercising the upload pipeline.
type testObjects struct {
	mu      sync.Mutex
	stored  map[string][]byte
	deletes []string
}

func newTestObjects() *testObjects {
	return &testObjects{stored: make(map[string][]byte)}
}

func (o *testObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stored[key] = data
	return nil
}

func (o *testObjects) PublicURL(key string) string {
	return "https://objects.test/booknest/" + key
}

func (o *testObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/booknest/" + key + "?sig=test", nil
}

func (o *testObjects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deletes = append(o.deletes, key)
	delete(o.stored, key)
	return nil
}
