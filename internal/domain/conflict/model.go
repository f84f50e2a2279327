package conflict

import (
	"fmt"
	"strings"

	"assistsync/internal/domain/document"
)

// Kind вид стратегии разрешения конфликтов
type Kind int

const (
	LastWriteWins Kind = iota
	FieldMerge
	ServerWins
	ClientWins
)

var kindNames = map[Kind]string{
	LastWriteWins: "last-write-wins",
	FieldMerge:    "field-merge",
	ServerWins:    "server-wins",
	ClientWins:    "client-wins",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind разбирает имя стратегии из конфигурации
func ParseKind(s string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for kind, name := range kindNames {
		if name == normalized {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Outcome какая из версий стала результатом
type Outcome string

const (
	OutcomeLocal  Outcome = "local"
	OutcomeRemote Outcome = "remote"
	OutcomeMerged Outcome = "merged"
)

// Resolution результат разрешения конфликта. Winner никогда не nil.
type Resolution struct {
	Winner    document.Document
	Loser     document.Document
	Strategy  Kind
	Outcome   Outcome
	ShouldLog bool
}

// Strategy политика разрешения конфликтов одной коллекции
type Strategy interface {
	Kind() Kind
	// Resolve выбирает итоговую версию документа
	Resolve(local, remote document.Document) (Resolution, error)
	// PrepareForPush проставляет метаданные синхронизации перед отправкой
	PrepareForPush(doc document.Document) (document.Document, error)
	// ProcessFromPull обрабатывает документ, полученный с сервера
	ProcessFromPull(doc document.Document) (document.Document, error)
}

func localWins(kind Kind, local, remote document.Document, log bool) Resolution {
	return Resolution{Winner: local, Loser: remote, Strategy: kind, Outcome: OutcomeLocal, ShouldLog: log}
}

func remoteWins(kind Kind, local, remote document.Document, log bool) Resolution {
	return Resolution{Winner: remote, Loser: local, Strategy: kind, Outcome: OutcomeRemote, ShouldLog: log}
}

// trivial обрабатывает случаи, когда одна из версий отсутствует
func trivial(kind Kind, local, remote document.Document) (Resolution, bool) {
	switch {
	case local == nil && remote == nil:
		return Resolution{Winner: document.Document{}, Strategy: kind, Outcome: OutcomeRemote}, true
	case local == nil:
		return remoteWins(kind, nil, remote, false), true
	case remote == nil:
		return localWins(kind, local, nil, false), true
	}
	return Resolution{}, false
}
