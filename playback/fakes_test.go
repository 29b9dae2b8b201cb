package playback

import (
	"context"
	"errors"
	"sync"
)

type fakeEngine struct {
	mu         sync.Mutex
	subs       map[int]func(Event)
	next       int
	source     string
	media      MediaElement
	cfg        EngineConfig
	startLoads []float64
	recovers   int
	levels     []int
	destroyed  int
}

func (e *fakeEngine) LoadSource(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = url
	return nil
}

func (e *fakeEngine) AttachMedia(el MediaElement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.media = el
	return nil
}

func (e *fakeEngine) StartLoad(position float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLoads = append(e.startLoads, position)
	return nil
}

func (e *fakeEngine) RecoverMediaError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recovers++
	return nil
}

func (e *fakeEngine) SetLevel(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.levels = append(e.levels, index)
	return nil
}

func (e *fakeEngine) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[int]func(Event))
	}
	id := e.next
	e.next++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

func (e *fakeEngine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed++
	e.subs = nil
	return nil
}

func (e *fakeEngine) subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

func (e *fakeEngine) emit(ev Event) {
	e.mu.Lock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

type fakeFactory struct {
	supported bool
	newErr    error
	engines   []*fakeEngine
}

func (f *fakeFactory) Supported(MediaElement) bool {
	return f.supported
}

func (f *fakeFactory) New(cfg EngineConfig) (Engine, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	e := &fakeEngine{cfg: cfg}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *fakeFactory) last() *fakeEngine {
	return f.engines[len(f.engines)-1]
}

type fakeElement struct {
	mu        sync.Mutex
	native    bool
	subs      map[int]func(Signal)
	next      int
	source    string
	sourceErr error
	plays     int
	playErr   error
	position  float64
}

var errAutoplayBlocked = errors.New("autoplay blocked")

func (el *fakeElement) CanPlayType(string) bool {
	return el.native
}

func (el *fakeElement) SetSource(_ context.Context, url string) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.source = url
	return el.sourceErr
}

func (el *fakeElement) Play() error {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.plays++
	return el.playErr
}

func (el *fakeElement) OnSignal(fn func(Signal)) func() {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.subs == nil {
		el.subs = make(map[int]func(Signal))
	}
	id := el.next
	el.next++
	el.subs[id] = fn
	return func() {
		el.mu.Lock()
		defer el.mu.Unlock()
		delete(el.subs, id)
	}
}

func (el *fakeElement) Position() float64 {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.position
}

func (el *fakeElement) subscribers() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.subs)
}

func (el *fakeElement) signal(sig Signal) {
	el.mu.Lock()
	fns := make([]func(Signal), 0, len(el.subs))
	for _, fn := range el.subs {
		fns = append(fns, fn)
	}
	el.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}

func (el *fakeElement) playCount() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.plays
}
