package conflict

import (
	"time"

	"assistsync/internal/domain/document"
)

// mergeExcluded поля, которые не участвуют в пополевом слиянии
var mergeExcluded = map[string]struct{}{
	document.FieldID:             {},
	document.FieldUserID:         {},
	document.FieldCreatedAt:      {},
	document.FieldUpdatedAt:      {},
	document.FieldLogicalClock:   {},
	document.FieldOriginDeviceID: {},
}

// Merge стратегия пополевого слияния
type Merge struct {
	stamper
	collection string
	tracker    FieldTracker
}

func (s *Merge) Kind() Kind {
	return FieldMerge
}

// Resolve берет удаленную версию за основу и сохраняет локальные значения тех полей,
// которые были изменены локально строго позже удаленного updatedAt.
func (s *Merge) Resolve(local, remote document.Document) (Resolution, error) {
	if res, ok := trivial(FieldMerge, local, remote); ok {
		return res, nil
	}

	merged := remote.Clone()
	remoteUpdated := remote.UpdatedAt()
	retained := false

	for field, value := range local {
		if _, skip := mergeExcluded[field]; skip || document.IsLocalOnlyField(field) {
			continue
		}
		if document.ValuesEqual(value, remote[field]) {
			continue
		}
		if s.localFieldTime(local, field).After(remoteUpdated) {
			merged[field] = value
			retained = true
		}
	}

	if !retained {
		return remoteWins(FieldMerge, local, remote, false), nil
	}

	clk := local.LogicalClock()
	if rc := remote.LogicalClock(); rc > clk {
		clk = rc
	}
	merged[document.FieldLogicalClock] = clk + 1
	merged[document.FieldUpdatedAt] = document.FormatTime(s.now().UTC())

	return Resolution{
		Winner:    merged,
		Loser:     remote,
		Strategy:  FieldMerge,
		Outcome:   OutcomeMerged,
		ShouldLog: true,
	}, nil
}

// TrackChanges помечает поля, которые отличаются между предыдущей и новой версиями
func (s *Merge) TrackChanges(previous, next document.Document, at time.Time) {
	id := next.ID()
	for _, diff := range document.DiffDocuments(previous, next) {
		if _, skip := mergeExcluded[diff.Field]; skip {
			continue
		}
		s.tracker.Track(s.collection, id, diff.Field, at)
	}
}

func (s *Merge) PrepareForPush(doc document.Document) (document.Document, error) {
	return s.stamp(doc), nil
}

func (s *Merge) ProcessFromPull(doc document.Document) (document.Document, error) {
	return passThrough(doc)
}

func (s *Merge) localFieldTime(local document.Document, field string) time.Time {
	if s.tracker != nil {
		if at, ok := s.tracker.Timestamp(s.collection, local.ID(), field); ok {
			return at
		}
	}
	return local.UpdatedAt()
}
