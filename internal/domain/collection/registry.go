package collection

import (
	"fmt"
	"sort"

	"assistsync/internal/domain/conflict"
)

// Registry неизменяемый реестр коллекций
type Registry struct {
	configs []Config
	byName  map[string]int
}

// NewRegistry проверяет конфигурации и строит реестр.
// Нулевой размер пакета заменяется на defaultBatch.
func NewRegistry(defaultBatch int, configs ...Config) (*Registry, error) {
	r := &Registry{
		configs: make([]Config, 0, len(configs)),
		byName:  make(map[string]int, len(configs)),
	}

	for _, c := range configs {
		if c.BatchSize == 0 {
			c.BatchSize = defaultBatch
		}
		if err := validate(c); err != nil {
			return nil, err
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate collection %q", ErrInvalidConfig, c.Name)
		}
		r.byName[c.Name] = len(r.configs)
		r.configs = append(r.configs, c)
	}

	return r, nil
}

// MustDefault реестр со стандартной таблицей коллекций
func MustDefault(defaultBatch int) *Registry {
	r, err := NewRegistry(defaultBatch, Defaults()...)
	if err != nil {
		panic(err)
	}
	return r
}

func validate(c Config) error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty collection name", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: %s: batch size must be positive", ErrInvalidConfig, c.Name)
	}
	switch c.Direction {
	case PullOnly:
		if c.Strategy != conflict.ServerWins {
			return fmt.Errorf("%w: %s: pull-only collection requires server-wins, got %s", ErrInvalidConfig, c.Name, c.Strategy)
		}
	case PushOnly:
		if c.Strategy != conflict.ClientWins {
			return fmt.Errorf("%w: %s: push-only collection requires client-wins, got %s", ErrInvalidConfig, c.Name, c.Strategy)
		}
	case Bidirectional:
	default:
		return fmt.Errorf("%w: %s: unknown direction %q", ErrInvalidConfig, c.Name, c.Direction)
	}
	return nil
}

func (r *Registry) Get(name string) (Config, error) {
	idx, ok := r.byName[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return r.configs[idx], nil
}

func (r *Registry) CanPush(name string) bool {
	c, err := r.Get(name)
	return err == nil && c.CanPush()
}

func (r *Registry) CanPull(name string) bool {
	c, err := r.Get(name)
	return err == nil && c.CanPull()
}

// ByPriority коллекции по убыванию приоритета, равные - в порядке регистрации
func (r *Registry) ByPriority() []Config {
	out := make([]Config, len(r.configs))
	copy(out, r.configs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Names имена коллекций в порядке регистрации
func (r *Registry) Names() []string {
	out := make([]string, len(r.configs))
	for i, c := range r.configs {
		out[i] = c.Name
	}
	return out
}
