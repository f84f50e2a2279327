package sync

import "assistsync/internal/domain/sync"

type getChangesInput struct {
	Collection string `path:"collection" doc:"Имя коллекции"`
	Body       sync.GetChangesRequest
}

type getChangesOutput struct {
	Body sync.GetChangesResponse
}

type batchSyncInput struct {
	Collection string `path:"collection" doc:"Имя коллекции"`
	Body       sync.BatchSyncRequest
}

type batchSyncOutput struct {
	Body sync.BatchSyncResponse
}
