package conflict

import (
	"time"

	"assistsync/internal/domain/clock"
	"assistsync/internal/domain/document"
)

// stamper проставляет метаданные локальной записи
type stamper struct {
	clock    *clock.Clock
	deviceID string
	now      func() time.Time
}

func (s stamper) stamp(doc document.Document) document.Document {
	out := doc.Clone()
	if out == nil {
		out = document.Document{}
	}
	now := s.now().UTC()

	out[document.FieldLogicalClock] = s.clock.Next()
	out[document.FieldOriginDeviceID] = s.deviceID
	out[document.FieldUpdatedAt] = document.FormatTime(now)
	if _, ok := out[document.FieldCreatedAt]; !ok {
		out[document.FieldCreatedAt] = document.FormatTime(now)
	}
	if out.IsDeleted() && out.DeletedAt().IsZero() {
		out[document.FieldDeletedAt] = document.FormatTime(now)
	}
	return out
}

func passThrough(doc document.Document) (document.Document, error) {
	return doc, nil
}
