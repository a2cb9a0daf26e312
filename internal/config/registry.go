package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/phonocoach/pkg/provider/g2p"
	"github.com/MrWong99/phonocoach/pkg/provider/llm"
	"github.com/MrWong99/phonocoach/pkg/provider/stt"
	"github.com/MrWong99/phonocoach/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory constructs a provider of type T from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name→constructor table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) names() []string {
	names := make([]string, 0, len(f.m))
	for n := range f.m {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Provider]
	tts factories[tts.Provider]
	g2p factories[g2p.Provider]
	llm factories[llm.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: newFactories[stt.Provider]("stt"),
		tts: newFactories[tts.Provider]("tts"),
		g2p: newFactories[g2p.Provider]("g2p"),
		llm: newFactories[llm.Provider]("llm"),
	}
}

// RegisterSTT registers a speech recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

// RegisterTTS registers a speech synthesizer factory under name.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

// RegisterG2P registers a phonemic converter factory under name. Wrapping
// converters such as "lexicon" may call [Registry.CreateG2P] from their
// factory to build the converter they sit in front of.
func (r *Registry) RegisterG2P(name string, factory Factory[g2p.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.g2p.m[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// CreateSTT instantiates the recognizer registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	factory, err := lookup(r, r.stt, entry.Name)
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateTTS instantiates the synthesizer registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	factory, err := lookup(r, r.tts, entry.Name)
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateG2P instantiates the converter registered under entry.Name.
func (r *Registry) CreateG2P(entry ProviderEntry) (g2p.Provider, error) {
	factory, err := lookup(r, r.g2p, entry.Name)
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	factory, err := lookup(r, r.llm, entry.Name)
	if err != nil {
		return nil, err
	}
	return factory(entry)
}

// Names returns the registered provider names of kind ("stt", "tts", "g2p" or
// "llm"), sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return r.stt.names()
	case "tts":
		return r.tts.names()
	case "g2p":
		return r.g2p.names()
	case "llm":
		return r.llm.names()
	}
	return nil
}

// lookup finds name in f. The factory runs after the lock is released so
// wrapping providers may create their inner provider through the registry.
func lookup[T any](r *Registry, f factories[T], name string) (Factory[T], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := f.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return factory, nil
}
