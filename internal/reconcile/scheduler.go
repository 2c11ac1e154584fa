package reconcile

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/case-reconcile/internal/model"
)

// DefaultWorkers bounds concurrent lookups against the remote service.
const DefaultWorkers = 3

// Stats counts what a scheduler run did.
type Stats struct {
	Planned   int `json:"planned"`
	Submitted int `json:"submitted"`
	Found     int `json:"found"`
	NotFound  int `json:"not_found"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
	// Discarded counts results that completed after draining stopped.
	Discarded int  `json:"discarded"`
	Cancelled bool `json:"cancelled"`
}

// Merged returns how many results reached the reconciler.
func (s Stats) Merged() int {
	return s.Found + s.NotFound + s.Failed
}

// Plan returns one task per distinct usable case id, in row order. Later
// rows sharing an id are attached to the first occurrence's task.
func Plan(ds *model.Dataset) []model.Task {
	if ds == nil {
		return nil
	}
	submitted := make(map[string]int, len(ds.Records))
	var tasks []model.Task
	for _, r := range ds.Records {
		if !r.HasCaseID() {
			continue
		}
		if i, ok := submitted[r.CaseID]; ok {
			tasks[i].Duplicates = append(tasks[i].Duplicates, r.RowIndex)
			continue
		}
		submitted[r.CaseID] = len(tasks)
		tasks = append(tasks, model.Task{
			RowIndex:  r.RowIndex,
			CaseID:    r.CaseID,
			FirstName: r.FirstName,
			LastName:  r.LastName,
		})
	}
	return tasks
}

// Scheduler fans tasks out to a bounded pool of workers and merges results
// as they complete.
type Scheduler struct {
	Worker  *Worker
	Workers int
	Logger  *zap.Logger
	// OnResult observes every result handed to the reconciler.
	OnResult func(model.LookupResult)
}

// Run plans tasks from source, submits them in row order and drains
// completions into rec until every task is merged or ctx is cancelled.
// After cancellation no new work is submitted and draining stops, but Run
// still waits for in-flight attempts before returning.
func (s *Scheduler) Run(ctx context.Context, source *model.Dataset, rec *Reconciler) Stats {
	log := s.logger()
	tasks := Plan(source)
	stats := Stats{Planned: len(tasks)}
	if len(tasks) == 0 {
		return stats
	}

	limit := s.Workers
	if limit <= 0 {
		limit = DefaultWorkers
	}

	// Buffered to the task count so workers never block on send, even
	// after the drain loop has stopped.
	results := make(chan model.LookupResult, len(tasks))
	submittedCh := make(chan int, 1)

	var g errgroup.Group
	g.SetLimit(limit)

	go func() {
		n := 0
		defer func() { submittedCh <- n }()
		for _, task := range tasks {
			if ctx.Err() != nil {
				log.Info("cancellation received, no further lookups will be submitted",
					zap.Int("submitted", n), zap.Int("planned", len(tasks)))
				return
			}
			n++
			g.Go(func() error {
				results <- s.Worker.Attempt(ctx, task)
				return nil
			})
		}
	}()

	// Submission count is known once the submitter exits; until then the
	// drain loop waits on whichever comes first.
	submitted := -1
	received := 0
	for submitted < 0 || received < submitted {
		if ctx.Err() != nil {
			stats.Cancelled = true
			log.Info("cancellation received, stopping result collection",
				zap.Int("collected", received))
			break
		}
		select {
		case n := <-submittedCh:
			submitted = n
		case res := <-results:
			received++
			s.handle(&stats, res, rec)
		case <-ctx.Done():
		}
	}

	if submitted < 0 {
		submitted = <-submittedCh
	}
	_ = g.Wait()
	close(results)

	stats.Submitted = submitted
	for range results {
		stats.Discarded++
	}
	if stats.Discarded > 0 {
		log.Info("discarded results that completed after cancellation",
			zap.Int("discarded", stats.Discarded))
	}
	return stats
}

func (s *Scheduler) handle(stats *Stats, res model.LookupResult, rec *Reconciler) {
	switch res.Outcome {
	case model.OutcomeFound:
		stats.Found++
	case model.OutcomeNotFound:
		stats.NotFound++
	case model.OutcomeFailed:
		stats.Failed++
	case model.OutcomeAbandoned:
		stats.Abandoned++
		return
	}
	rec.Merge(res.Task, res)
	if s.OnResult != nil {
		s.OnResult(res)
	}
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.L()
	}
	return s.Logger
}
