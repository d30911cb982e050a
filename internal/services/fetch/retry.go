// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package fetch

import (
	"sync"
	"time"
)

// RetryTask is one pending re-attempt of a failed file. Attempt numbers
// count total executions: a task scheduled with Attempt == 2 is the second
// run of that path.
type RetryTask struct {
	Path        string
	Attempt     int
	MaxAttempts int
	NotBefore   time.Time
	LastError   string
}

// retryQueue holds tasks awaiting their NotBefore time. One pending task per
// path; a newer failure for the same path replaces the older entry.
type retryQueue struct {
	mu    sync.Mutex
	tasks map[string]RetryTask
}

func newRetryQueue() *retryQueue {
	return &retryQueue{tasks: make(map[string]RetryTask)}
}

func (q *retryQueue) push(task RetryTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[task.Path] = task
}

// pushIfAbsent queues task unless a task for the same path is already
// pending. Used when a popped task has to go back: the in-flight run it lost
// to may have scheduled its own follow-up, which must not be clobbered.
func (q *retryQueue) pushIfAbsent(task RetryTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[task.Path]; ok {
		return false
	}
	q.tasks[task.Path] = task
	return true
}

// popDue removes and returns every task whose NotBefore has passed. Tasks
// not yet due stay queued unchanged.
func (q *retryQueue) popDue(now time.Time) []RetryTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []RetryTask
	for path, task := range q.tasks {
		if !task.NotBefore.After(now) {
			due = append(due, task)
			delete(q.tasks, path)
		}
	}
	return due
}

func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
