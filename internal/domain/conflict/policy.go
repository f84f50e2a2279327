package conflict

import "assistsync/internal/domain/document"

// Server стратегия "сервер всегда прав" для коллекций только на чтение
type Server struct {
	stamper
}

func (s *Server) Kind() Kind {
	return ServerWins
}

func (s *Server) Resolve(local, remote document.Document) (Resolution, error) {
	if res, ok := trivial(ServerWins, local, remote); ok {
		return res, nil
	}
	return remoteWins(ServerWins, local, remote, false), nil
}

func (s *Server) PrepareForPush(document.Document) (document.Document, error) {
	return nil, ErrPushNotAllowed
}

func (s *Server) ProcessFromPull(doc document.Document) (document.Document, error) {
	return passThrough(doc)
}

// Client стратегия "клиент всегда прав" для коллекций только на запись
type Client struct {
	stamper
}

func (s *Client) Kind() Kind {
	return ClientWins
}

func (s *Client) Resolve(local, remote document.Document) (Resolution, error) {
	if res, ok := trivial(ClientWins, local, remote); ok {
		return res, nil
	}
	return localWins(ClientWins, local, remote, false), nil
}

func (s *Client) PrepareForPush(doc document.Document) (document.Document, error) {
	return s.stamp(doc), nil
}

func (s *Client) ProcessFromPull(document.Document) (document.Document, error) {
	return nil, ErrPullNotAllowed
}
