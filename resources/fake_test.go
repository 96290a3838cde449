package resources

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
)

type call struct {
	Method string
	Path   string
	Params url.Values
}

// fakeAPI answers by "METHOD path" and records every call.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]string
	failures  map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{responses: map[string]string{}, failures: map[string]error{}}
}

func (f *fakeAPI) on(method, path, data string) *fakeAPI {
	f.responses[method+" "+path] = data
	return f
}

func (f *fakeAPI) fail(method, path string, err error) *fakeAPI {
	f.failures[method+" "+path] = err
	return f
}

func (f *fakeAPI) Do(_ context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: method, Path: path, Params: params})
	key := method + " " + path
	if err, ok := f.failures[key]; ok {
		return nil, err
	}
	if data, ok := f.responses[key]; ok {
		return json.RawMessage(data), nil
	}
	return nil, errors.New("unexpected call " + key)
}

func (f *fakeAPI) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeAPI) last() call {
	calls := f.Calls()
	if len(calls) == 0 {
		return call{}
	}
	return calls[len(calls)-1]
}

func (f *fakeAPI) called(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.Method+" "+c.Path, prefix) {
			return true
		}
	}
	return false
}
