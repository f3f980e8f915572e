package event

import (
	"context"
	"sync"

	"github.com/maniartech/signals"
)

type Kind string

type TopicKey[T any] interface {
	Name() Kind
}

type topicKey[T any] struct {
	name Kind
}

func (t topicKey[T]) Name() Kind {
	return t.name
}

func NewTopicKey[T any](name Kind) TopicKey[T] {
	return topicKey[T]{name: name}
}

var (
	subscribers = make(map[Kind]*signals.AsyncSignal[any])
	lock        sync.RWMutex
)

// signal returns the signal of name, creating it on first use.
// need lock held.
func signal(name Kind) *signals.AsyncSignal[any] {
	if s, ok := subscribers[name]; ok {
		return s
	}
	sig := signals.New[any]()
	subscribers[name] = sig
	return sig
}

// NewPublish returns an emitter for topic.
func NewPublish[T any](topic TopicKey[T]) func(ctx context.Context, payload T) {
	lock.Lock()
	defer lock.Unlock()

	sig := signal(topic.Name())
	return func(ctx context.Context, payload T) {
		sig.Emit(ctx, payload)
	}
}

// Subscribe registers handler on topic. Subscribing before any publisher
// exists is allowed.
func Subscribe[T any](topic TopicKey[T], handler func(ctx context.Context, payload T)) {
	lock.Lock()
	defer lock.Unlock()

	signal(topic.Name()).AddListener(func(ctx context.Context, payload any) {
		if v, ok := payload.(T); ok {
			handler(ctx, v)
		}
	})
}
