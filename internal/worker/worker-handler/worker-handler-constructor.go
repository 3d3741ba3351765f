package worker_handler

import (
	"github.com/xenn00/crew-chat/internal/realtime"
)

type WorkerHandler struct {
	Publisher realtime.Publisher
}

func NewWorkerHandler(publisher realtime.Publisher) *WorkerHandler {
	return &WorkerHandler{
		Publisher: publisher,
	}
}
