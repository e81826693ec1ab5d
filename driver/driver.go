package driver

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"

	abcd "github.com/tearne/abcd-go"
	"github.com/tearne/abcd-go/abcderr"
	"github.com/tearne/abcd-go/config"
	"github.com/tearne/abcd-go/genwrapper"
	"github.com/tearne/abcd-go/particle"
	"github.com/tearne/abcd-go/storage"
)

const failureHistoryLimit = 10

// Loop drives one worker's SMC state machine (§4.5/§4.6) until the
// target generation is reached and the job is configured to terminate
// there, the context is cancelled, or a fatal error occurs.
func Loop[P abcd.Vector[P]](ctx context.Context, model abcd.Model[P], store storage.Store[P], cfg config.Config, rng *rand.Rand, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	failures := 0
	var history []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		done, err := iterate(ctx, model, store, cfg, rng, log, &failures, &history)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// iterate runs one Loading -> Proposing -> (Scoring|Flushing) -> Loading
// cycle. It returns done=true once the target generation is reached and
// the job is configured to terminate there.
func iterate[P abcd.Vector[P]](ctx context.Context, model abcd.Model[P], store storage.Store[P], cfg config.Config, rng *rand.Rand, log *logrus.Entry, failures *int, history *[]string) (bool, error) {
	prevNum, err := store.PreviousGenNumber(ctx)
	if err != nil {
		return false, err
	}

	if prevNum == cfg.Job.NumGenerations && cfg.Job.TerminateAtTargetGen {
		if _, ok := Transition(Loading, EventTargetReached); !ok {
			return false, abcderr.Systemf("invalid state transition Loading -> Terminated")
		}
		log.WithField("gen", prevNum).Info("target generation reached, terminating")
		return true, nil
	}
	if _, ok := Transition(Loading, EventMetadataLoaded); !ok {
		return false, abcderr.Systemf("invalid state transition Loading -> Proposing")
	}

	wrapper, err := loadWrapper(ctx, model, store, prevNum)
	if err != nil {
		return false, err
	}
	genNumber := prevNum + 1
	genLog := log.WithField("gen", genNumber)

	return false, attemptOneParticle(ctx, model, store, cfg, rng, genLog, wrapper, genNumber, failures, history)
}

// loadWrapper builds the generation wrapper for the generation
// following prevNum: prior mode when prevNum == 0, empirical mode
// (backed by the previous generation's accepted particles and a fresh
// kernel builder from model.BuildKernelBuilder) otherwise.
func loadWrapper[P abcd.Vector[P]](ctx context.Context, model abcd.Model[P], store storage.Store[P], prevNum uint16) (*genwrapper.Wrapper[P], error) {
	if prevNum == 0 {
		return genwrapper.NewPrior[P](model), nil
	}

	gen, err := store.LoadPreviousGen(ctx)
	if err != nil {
		return nil, err
	}

	kb, err := model.BuildKernelBuilder(gen.Pop.NormalisedParticles)
	if err != nil {
		return nil, err
	}

	return genwrapper.NewEmpirical(model, gen.Pop.NormalisedParticles, kb, gen.NextGenTolerance)
}

// attemptOneParticle implements one step of the §4.5 pseudocode: flush
// if the accepted-particle target is met, otherwise propose, perturb,
// score, weigh and save one particle.
func attemptOneParticle[P abcd.Vector[P]](
	ctx context.Context,
	model abcd.Model[P],
	store storage.Store[P],
	cfg config.Config,
	rng *rand.Rand,
	log *logrus.Entry,
	wrapper *genwrapper.Wrapper[P],
	genNumber uint16,
	failures *int,
	history *[]string,
) error {
	accepted, err := store.NumAcceptedParticles(ctx)
	if err != nil {
		return err
	}
	if accepted >= cfg.Job.NumParticles {
		if _, ok := Transition(Proposing, EventFlushTriggered); !ok {
			return abcderr.Systemf("invalid state transition Proposing -> Flushing")
		}
		err := attemptFlush(ctx, store, cfg, log, genNumber)
		if _, tOk := Transition(Flushing, EventFlushed); !tOk {
			return abcderr.Systemf("invalid state transition Flushing -> Loading")
		}
		return err
	}

	if _, ok := Transition(Proposing, EventCandidateProduced); !ok {
		return abcderr.Systemf("invalid state transition Proposing -> Scoring")
	}
	candidate := wrapper.Sample(rng)

	k, err := wrapper.BuildKernel(candidate)
	if err != nil {
		if abcderr.Is(err, abcderr.Particle) {
			return recordRecoverable(log, failures, history, cfg.Algorithm.MaxNumFailures, err, Scoring, EventParticleError)
		}
		return err
	}

	perturbed, err := wrapper.Perturb(candidate, k, rng)
	if err != nil {
		return recordRecoverable(log, failures, history, cfg.Algorithm.MaxNumFailures, err, Scoring, EventParticleError)
	}

	score, err := model.Score(perturbed)
	if err != nil {
		if abcderr.Is(err, abcderr.Particle) {
			return recordRecoverable(log, failures, history, cfg.Algorithm.MaxNumFailures, err, Scoring, EventParticleError)
		}
		return err
	}
	if _, ok := Transition(Scoring, EventScoreSucceeded); !ok {
		return abcderr.Systemf("invalid state transition Scoring -> Saving")
	}

	weight, err := wrapper.Weigh(perturbed, score, k)
	if err != nil {
		return err
	}

	p := particle.Particle[P]{Parameters: perturbed, Score: score, Weight: weight}
	_, err = store.SaveParticle(ctx, p, genNumber)
	if err != nil {
		if abcderr.Is(err, abcderr.StaleGeneration) {
			log.WithError(err).Warn("stale generation during save, discarding particle")
			return recordRecoverable(log, failures, history, cfg.Algorithm.MaxNumFailures, err, Saving, EventSaved)
		}
		return err
	}
	if _, ok := Transition(Saving, EventSaved); !ok {
		return abcderr.Systemf("invalid state transition Saving -> Loading")
	}

	*failures = 0
	*history = nil
	return nil
}

// attemptFlush implements the §4.5 flush logic: re-check for a race,
// then seal and save the new generation, treating "already exists" and
// a lost race as normal, non-error outcomes.
func attemptFlush[P abcd.Vector[P]](ctx context.Context, store storage.Store[P], cfg config.Config, log *logrus.Entry, genNumber uint16) error {
	prevNum, err := store.PreviousGenNumber(ctx)
	if err != nil {
		return err
	}
	if prevNum >= genNumber {
		log.Info("flush aborted: another worker already flushed this generation")
		return nil
	}

	accepted, err := store.LoadAcceptedParticles(ctx)
	if err != nil {
		return err
	}
	rejected, err := store.NumRejectedParticles(ctx)
	if err != nil {
		return err
	}
	total := uint64(len(accepted)) + rejected
	var acceptance float32
	if total > 0 {
		acceptance = float32(len(accepted)) / float32(total)
	}

	gen, err := particle.New(accepted, genNumber, acceptance, float64(cfg.Algorithm.ToleranceDescentPercentile))
	if err != nil {
		return err
	}

	err = store.SaveNewGen(ctx, gen)
	if err != nil {
		if errors.Is(err, storage.ErrGenerationAlreadyExists) {
			log.Info("flush lost the race: generation already saved by another worker")
			return nil
		}
		return err
	}
	log.WithField("num_particles", len(accepted)).Info("flushed new generation")
	return nil
}

// recordRecoverable bumps the consecutive-failure counter and trailing
// history on a particle-local or stale-generation error, performs the
// state transition that error implies (Scoring -> Proposing for a
// particle-local error, Saving -> Loading for a discarded stale save),
// and converts to a fatal TooManyRetries once the budget
// (max_num_failures) is exhausted. A successful save resets both
// counters via the caller.
func recordRecoverable(log *logrus.Entry, failures *int, history *[]string, maxFailures int, cause error, from State, ev Event) error {
	*failures++
	*history = append(*history, cause.Error())
	if len(*history) > failureHistoryLimit {
		*history = (*history)[len(*history)-failureHistoryLimit:]
	}
	log.WithError(cause).WithField("consecutive_failures", *failures).Warn("recoverable error, resampling")

	if _, ok := Transition(from, ev); !ok {
		return abcderr.Systemf("invalid state transition %v -> (event %d)", from, ev)
	}
	if *failures >= maxFailures {
		return abcderr.NewTooManyRetries("exhausted consecutive failure budget", *history)
	}
	return nil
}
