package conflict

import (
	"fmt"
	"sync"
	"time"

	"assistsync/internal/domain/clock"
)

// Deps зависимости стратегий
type Deps struct {
	Clock    *clock.Clock
	DeviceID string
	Tracker  FieldTracker
	Now      func() time.Time
}

type constructor func(collection string, deps Deps) Strategy

var constructors = map[Kind]constructor{
	LastWriteWins: func(_ string, d Deps) Strategy {
		return &LWW{stamper: newStamper(d)}
	},
	FieldMerge: func(collection string, d Deps) Strategy {
		return &Merge{stamper: newStamper(d), collection: collection, tracker: d.Tracker}
	},
	ServerWins: func(_ string, d Deps) Strategy {
		return &Server{stamper: newStamper(d)}
	},
	ClientWins: func(_ string, d Deps) Strategy {
		return &Client{stamper: newStamper(d)}
	},
}

func newStamper(d Deps) stamper {
	return stamper{clock: d.Clock, deviceID: d.DeviceID, now: d.Now}
}

type cacheKey struct {
	collection string
	kind       Kind
}

// Factory создает и кэширует стратегии по паре (коллекция, вид)
type Factory struct {
	deps  Deps
	mu    sync.Mutex
	cache map[cacheKey]Strategy
}

func NewFactory(deps Deps) *Factory {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Clock == nil {
		deps.Clock = clock.New(0)
	}
	if deps.Tracker == nil {
		deps.Tracker = NewMemoryTracker()
	}
	return &Factory{deps: deps, cache: make(map[cacheKey]Strategy)}
}

// For возвращает стратегию для коллекции
func (f *Factory) For(collection string, kind Kind) (Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := cacheKey{collection: collection, kind: kind}
	if s, ok := f.cache[key]; ok {
		return s, nil
	}

	build, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, kind)
	}

	s := build(collection, f.deps)
	f.cache[key] = s
	return s, nil
}
