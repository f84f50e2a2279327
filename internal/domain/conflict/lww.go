package conflict

import (
	"time"

	"assistsync/internal/domain/document"
)

// LWW стратегия "последняя запись побеждает" по гибриду логических часов и времени
type LWW struct {
	stamper
}

func (s *LWW) Kind() Kind {
	return LastWriteWins
}

// Resolve:
//  1. расхождение isDeleted - побеждает более позднее действие (deletedAt или updatedAt),
//     при равенстве удаленная версия; всегда логируется
//  2. побеждает больший logicalClock
//  3. при равных часах побеждает более поздний updatedAt; полное совпадение - удаленная версия без лога
func (s *LWW) Resolve(local, remote document.Document) (Resolution, error) {
	if res, ok := trivial(LastWriteWins, local, remote); ok {
		return res, nil
	}

	if local.IsDeleted() != remote.IsDeleted() {
		if actionTime(local).After(actionTime(remote)) {
			return localWins(LastWriteWins, local, remote, true), nil
		}
		return remoteWins(LastWriteWins, local, remote, true), nil
	}

	lc, rc := local.LogicalClock(), remote.LogicalClock()
	switch {
	case lc > rc:
		return localWins(LastWriteWins, local, remote, true), nil
	case rc > lc:
		return remoteWins(LastWriteWins, local, remote, true), nil
	}

	lu, ru := local.UpdatedAt(), remote.UpdatedAt()
	switch {
	case lu.After(ru):
		return localWins(LastWriteWins, local, remote, true), nil
	case ru.After(lu):
		return remoteWins(LastWriteWins, local, remote, true), nil
	}

	return remoteWins(LastWriteWins, local, remote, false), nil
}

func (s *LWW) PrepareForPush(doc document.Document) (document.Document, error) {
	return s.stamp(doc), nil
}

func (s *LWW) ProcessFromPull(doc document.Document) (document.Document, error) {
	return passThrough(doc)
}

func actionTime(doc document.Document) time.Time {
	if doc.IsDeleted() {
		if deleted := doc.DeletedAt(); !deleted.IsZero() {
			return deleted
		}
	}
	return doc.UpdatedAt()
}
