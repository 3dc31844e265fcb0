package ocrengine

import (
	"context"
	"encoding/json"
	"sync"
)

// Fake is a scripted Engine for tests. It returns the configured errors in
// order, then succeeds with the configured result.
type Fake struct {
	mu sync.Mutex

	// Errs are consumed one per call before Pages/Version are returned.
	Errs    []error
	Pages   int
	Version string
	Text    string

	calls int
}

func (f *Fake) Name() string { return "fake" }

// Calls reports how many times Detect has been invoked.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Detect(_ context.Context, bucket, key string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.Errs) > 0 {
		err := f.Errs[0]
		f.Errs = f.Errs[1:]
		return Result{}, err
	}
	pages := f.Pages
	if pages == 0 {
		pages = 1
	}
	version := f.Version
	if version == "" {
		version = "fake-1.0"
	}
	raw, _ := json.Marshal(map[string]any{
		"Blocks": []map[string]any{{"BlockType": "LINE", "Text": f.Text}},
		"Source": bucket + "/" + key,
	})
	return Result{Raw: raw, PageCount: pages, EngineVersion: version}, nil
}
