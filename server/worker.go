package server

import (
	"fmt"

	"github.com/chazu/loupe/pkg/eval"
)

// Env bundles everything an evaluation needs at the current stop point: the
// symbol-resolution factory, the method-call capability and the opaque frame
// state the readers expect. The JVMTI bridge supplies the production
// implementations; tests supply synthetic ones.
type Env struct {
	Factory   eval.ReadersFactory
	Caller    eval.MethodCaller
	FrameData any
}

// task is one closure queued for the debuggee goroutine, paired with the
// channel its outcome comes back on.
type task struct {
	fn   func(*Env) interface{}
	done chan outcome
}

type outcome struct {
	value interface{}
	err   error
}

// Worker owns the debuggee goroutine. JVMTI frame and object access is only
// valid from the thread holding the stop, so RPC handlers and notification
// hooks never touch the Env directly: they submit a closure and wait for its
// outcome.
type Worker struct {
	env   *Env
	tasks chan task
	quit  chan struct{}
}

// NewWorker starts the debuggee goroutine over env.
func NewWorker(env *Env) *Worker {
	w := &Worker{
		env:   env,
		tasks: make(chan task, 64),
		quit:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case t := <-w.tasks:
			t.done <- w.run(t.fn)
		case <-w.quit:
			return
		}
	}
}

// run executes one closure, converting a panic into an error so a broken
// evaluation cannot take the agent down with it.
func (w *Worker) run(fn func(*Env) interface{}) (result outcome) {
	defer func() {
		if r := recover(); r != nil {
			result = outcome{err: fmt.Errorf("%v", r)}
		}
	}()
	result.value = fn(w.env)
	return
}

// Do runs fn on the debuggee goroutine and blocks until it finishes,
// returning fn's value or the recovered panic as an error.
func (w *Worker) Do(fn func(*Env) interface{}) (interface{}, error) {
	t := task{fn: fn, done: make(chan outcome, 1)}
	w.tasks <- t
	out := <-t.done
	return out.value, out.err
}

// Stop ends the debuggee goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
