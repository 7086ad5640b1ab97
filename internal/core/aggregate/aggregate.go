// Package aggregate folds satellite query results into primary rows.
//
// Reads happen in two passes. The primary rows are loaded into an Index, which keeps
// their order and maps each id to a slot. Satellite rows are then appended to the
// slot of their parent in the order the satellite query returned them.
package aggregate

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type Index[T any] struct {
	items []T
	slots map[int64]int
}

func NewIndex[T any](capacity int) *Index[T] {
	return &Index[T]{
		items: make([]T, 0, capacity),
		slots: make(map[int64]int, capacity),
	}
}

// Add appends item under id. A repeated id keeps its first slot.
func (ix *Index[T]) Add(id int64, item T) {
	if _, ok := ix.slots[id]; ok {
		return
	}
	ix.slots[id] = len(ix.items)
	ix.items = append(ix.items, item)
}

func (ix *Index[T]) Get(id int64) (*T, bool) {
	slot, ok := ix.slots[id]
	if !ok {
		return nil, false
	}
	return &ix.items[slot], true
}

func (ix *Index[T]) Len() int {
	return len(ix.items)
}

// IDs returns the ids in insertion order.
func (ix *Index[T]) IDs() []int64 {
	ids := make([]int64, len(ix.items))
	for id, slot := range ix.slots {
		ids[slot] = id
	}
	return ids
}

func (ix *Index[T]) Items() []T {
	return ix.items
}

// Attach appends every row to the entry its parent id points to and returns how
// many rows had no matching entry. Those are skipped.
func Attach[T, S any](ix *Index[T], rows []S, parent func(S) int64, add func(*T, S)) int {
	skipped := 0
	for _, row := range rows {
		entry, ok := ix.Get(parent(row))
		if !ok {
			skipped++
			continue
		}
		add(entry, row)
	}
	return skipped
}

// Task is one satellite query.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Fetch builds a Task that stores the query result into dst.
func Fetch[S any](name string, dst *[]S, q func(ctx context.Context) ([]S, error)) Task {
	return Task{
		Name: name,
		Run: func(ctx context.Context) error {
			rows, err := q(ctx)
			if err != nil {
				return err
			}
			*dst = rows
			return nil
		},
	}
}

// Observer is told how long each task took.
type Observer func(name string, elapsed time.Duration, err error)

// FanOut runs every task concurrently and waits for all of them. The first failure
// cancels the context shared by the others and is returned.
func FanOut(ctx context.Context, observe Observer, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			start := time.Now()
			err := t.Run(gctx)
			if observe != nil {
				observe(t.Name, time.Since(start), err)
			}
			return err
		})
	}
	return g.Wait()
}
