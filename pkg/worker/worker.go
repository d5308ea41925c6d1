package worker

import (
	"sync"

	"github.com/nimasrn/rental-gateway/pkg/logger"
)

type WorkerHandler = func(workerIndex int, job any)

type WorkerManager struct {
	jobChannel     chan any
	numberOfWorker int
	do             WorkerHandler
	stop           chan struct{}
	stopOnce       sync.Once
	closeOnce      sync.Once
	waiter         *sync.WaitGroup
}

// NewWorkerManager
// is a job manager based on go routines. Define the number of internal
// workers, Start them and publish jobs with Enqueue. Close drains what is
// already queued and lets the workers return; Exit stops them right away.
func NewWorkerManager(bufferSize, numberOfWorkers int) *WorkerManager {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	return &WorkerManager{
		jobChannel:     make(chan any, bufferSize),
		numberOfWorker: numberOfWorkers,
		stop:           make(chan struct{}),
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue
// Publishes a job onto the channel. Must not be called after Close.
func (w *WorkerManager) Enqueue(val any) {
	w.jobChannel <- val
}

// Start
// starts off the workers as many as defined
// by w.numberOfWorker. It does not block; use Wait.
func (w *WorkerManager) Start() {
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job, ok := <-w.jobChannel:
					if !ok {
						return
					}
					w.do(index, job)
				case <-w.stop:
					return
				}
			}
		}(i)
	}
}

// Close tells the workers no more jobs are coming.
func (w *WorkerManager) Close() {
	w.closeOnce.Do(func() { close(w.jobChannel) })
}

// Wait blocks until every worker has returned.
func (w *WorkerManager) Wait() {
	w.waiter.Wait()
}

// Exit
// stops all workers without draining the queue.
func (w *WorkerManager) Exit() {
	w.stopOnce.Do(func() {
		logger.Info("worker manager is shutting down", "workers", w.numberOfWorker, "unread", w.GetUnreadCount())
		close(w.stop)
	})
}
