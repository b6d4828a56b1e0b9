package trainer

import (
	"context"
	"sync"
	"sync/atomic"
)

// Step counters go through atomics so parallel actors and the learner
// agree on the global step without a lock.
func (t *Trainer) loadStep() int64 { return atomic.LoadInt64(&t.step) }
func (t *Trainer) addStep() int64  { return atomic.AddInt64(&t.step, 1) }

// runParallel fans episodes out over ActorCount worker goroutines, each
// owning its environment and feeding the shared replay buffer. Learning
// updates and target syncs stay on this (learner) goroutine, driven by
// per-step tokens, so the online estimator has a single writer.
func (t *Trainer) runParallel(ctx context.Context) (int, error) {
	stepCh := make(chan int64, 256)
	epCh := make(chan episodeStats, t.cfg.ActorCount)

	var claimed int64 = int64(t.cfg.ResumeEpisode)
	var wg sync.WaitGroup
	actorErrs := make(chan error, t.cfg.ActorCount)

	for i := 0; i < t.cfg.ActorCount; i++ {
		e := t.envs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				if atomic.AddInt64(&claimed, 1) > int64(t.cfg.TotalEpisodes) {
					return
				}
				stats, err := t.runEpisode(ctx, e, func(step int64) {
					select {
					case stepCh <- step:
					case <-ctx.Done():
					}
				})
				if err != nil {
					actorErrs <- err
					return
				}
				if stats.stopped {
					return
				}
				select {
				case epCh <- stats:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// close the feeds once every actor is finished
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	episode := t.cfg.ResumeEpisode
	for {
		select {
		case step := <-stepCh:
			if err := t.learn(); err != nil {
				return episode, err
			}
			if step%int64(t.cfg.TargetSyncInterval) == 0 {
				t.policy.SyncTarget()
			}
		case stats := <-epCh:
			episode++
			t.recordEpisode(ctx, episode, stats)
			if episode%t.cfg.CheckpointInterval == 0 {
				t.checkpoint(ctx, episode)
			}
		case err := <-actorErrs:
			return episode, err
		case <-done:
			// drain anything the actors left behind
			for {
				select {
				case step := <-stepCh:
					if err := t.learn(); err != nil {
						return episode, err
					}
					if step%int64(t.cfg.TargetSyncInterval) == 0 {
						t.policy.SyncTarget()
					}
				case stats := <-epCh:
					episode++
					t.recordEpisode(ctx, episode, stats)
					if episode%t.cfg.CheckpointInterval == 0 {
						t.checkpoint(ctx, episode)
					}
				default:
					select {
					case err := <-actorErrs:
						return episode, err
					default:
						return episode, nil
					}
				}
			}
		}
	}
}
