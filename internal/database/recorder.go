package database

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultRecorderQueueSize = 512

type writeJob struct {
	kind   string
	roomId string
	fn     func() error
}

// Recorder performs best-effort, asynchronous writes to a repository.
// Enqueueing never blocks; failed or dropped writes are logged and forgotten.
type Recorder struct {
	repo   WhiteboardRepository
	log    *logrus.Logger
	queue  chan writeJob
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func NewRecorder(repo WhiteboardRepository, logger *logrus.Logger, size int) *Recorder {
	if size <= 0 {
		size = defaultRecorderQueueSize
	}

	return &Recorder{
		repo:  repo,
		log:   logger,
		queue: make(chan writeJob, size),
		done:  make(chan struct{}),
	}
}

func (r *Recorder) Run() {
	go func() {
		defer close(r.done)
		for job := range r.queue {
			if err := job.fn(); err != nil {
				r.log.WithError(err).WithFields(logrus.Fields{
					"room_id": job.roomId,
					"write":   job.kind,
				}).Error("failed to persist")
			}
		}
	}()
}

func (r *Recorder) RecordRoom(room Room) {
	r.enqueue(writeJob{kind: "room", roomId: room.RoomId, fn: func() error {
		return r.repo.CreateRoom(room)
	}})
}

func (r *Recorder) RecordMessage(msg Message) {
	r.enqueue(writeJob{kind: "message", roomId: msg.RoomId, fn: func() error {
		return r.repo.CreateMessage(msg)
	}})
}

func (r *Recorder) enqueue(job writeJob) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.log.WithFields(logrus.Fields{"room_id": job.roomId, "write": job.kind}).Warn("recorder stopped, dropping write")
		return false
	}

	select {
	case r.queue <- job:
		return true
	default:
		r.log.WithFields(logrus.Fields{"room_id": job.roomId, "write": job.kind}).Warn("recorder queue full, dropping write")
		return false
	}
}

// Stop rejects further writes and waits for queued writes to finish. Run
// must have been called.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}
