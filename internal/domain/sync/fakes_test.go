package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"assistsync/internal/domain/document"
)

type memLocal struct {
	mu        gosync.Mutex
	docs      map[string]map[string]document.Document
	failWrite map[string]error
}

func newMemLocal() *memLocal {
	return &memLocal{
		docs:      make(map[string]map[string]document.Document),
		failWrite: make(map[string]error),
	}
}

func (l *memLocal) Read(_ context.Context, collection, id string) (document.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.docs[collection][id].Clone(), nil
}

func (l *memLocal) Write(_ context.Context, collection string, doc document.Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.failWrite[doc.ID()]; err != nil {
		return err
	}
	if l.docs[collection] == nil {
		l.docs[collection] = make(map[string]document.Document)
	}
	l.docs[collection][doc.ID()] = doc.Clone()
	return nil
}

func (l *memLocal) EnumerateChangesSince(_ context.Context, collection string, since time.Time) ([]document.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []document.Document
	for _, doc := range l.docs[collection] {
		if doc.UpdatedAt().After(since) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (l *memLocal) get(collection, id string) document.Document {
	doc, _ := l.Read(context.Background(), collection, id)
	return doc
}

type memState struct {
	mu          gosync.Mutex
	checkpoints map[string]int64
	clock       int64
}

func newMemState() *memState {
	return &memState{checkpoints: make(map[string]int64)}
}

func (s *memState) LoadCheckpoint(_ context.Context, collection string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[collection], nil
}

func (s *memState) SaveCheckpoint(_ context.Context, collection string, checkpoint int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[collection] = checkpoint
	return nil
}

func (s *memState) LoadClock(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock, nil
}

func (s *memState) SaveClock(_ context.Context, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = value
	return nil
}

func (s *memState) DeviceID(context.Context) (string, error) {
	return "device-test", nil
}

// fakeRemote хранит документы коллекции как журнал: позиция = номер записи
type fakeRemote struct {
	mu         gosync.Mutex
	log        map[string][]document.Document
	failFetch  map[string]error
	failUpsert map[string]error
	fetchCalls map[string]int
	upserts    map[string][][]document.Document
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		log:        make(map[string][]document.Document),
		failFetch:  make(map[string]error),
		failUpsert: make(map[string]error),
		fetchCalls: make(map[string]int),
		upserts:    make(map[string][][]document.Document),
	}
}

func (r *fakeRemote) add(collection string, docs ...document.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log[collection] = append(r.log[collection], docs...)
}

func (r *fakeRemote) FetchSince(_ context.Context, collection string, checkpoint int64, batchSize int) (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fetchCalls[collection]++
	if err := r.failFetch[collection]; err != nil {
		return nil, err
	}

	all := r.log[collection]
	start := int(checkpoint)
	if start > len(all) {
		start = len(all)
	}
	end := start + batchSize
	if end > len(all) {
		end = len(all)
	}

	docs := make([]document.Document, 0, end-start)
	for _, d := range all[start:end] {
		docs = append(docs, d.Clone())
	}
	return &Batch{Documents: docs, Checkpoint: int64(end), HasMore: end < len(all)}, nil
}

func (r *fakeRemote) UpsertBatch(_ context.Context, collection string, docs []document.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failUpsert[collection]; err != nil {
		return err
	}
	r.upserts[collection] = append(r.upserts[collection], docs)
	r.log[collection] = append(r.log[collection], docs...)
	return nil
}

func (r *fakeRemote) calls(collection string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchCalls[collection]
}

// subscribingRemote сообщает об одном изменении сразу после подписки
type subscribingRemote struct {
	*fakeRemote
	mu         gosync.Mutex
	subscribed map[string]int
}

func (r *subscribingRemote) Subscribe(ctx context.Context, collection string, onChange func(Change)) error {
	r.mu.Lock()
	r.subscribed[collection]++
	r.mu.Unlock()

	onChange(Change{Collection: collection, DocumentID: "x", Seq: 1})
	<-ctx.Done()
	return ctx.Err()
}

// blockingLocal задерживает первую запись до закрытия release и,
// как настоящее хранилище, отказывает после отмены контекста
type blockingLocal struct {
	*memLocal
	once    gosync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockingLocal() *blockingLocal {
	return &blockingLocal{
		memLocal: newMemLocal(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (l *blockingLocal) Write(ctx context.Context, collection string, doc document.Document) error {
	l.once.Do(func() {
		close(l.entered)
		<-l.release
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.memLocal.Write(ctx, collection, doc)
}

var errUnavailable = errors.New("remote unavailable")
