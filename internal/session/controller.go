package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lshigami/Pangolin/internal/auth"
	"github.com/lshigami/Pangolin/internal/model"
	"github.com/lshigami/Pangolin/internal/service"
	"github.com/lshigami/Pangolin/internal/transport"
	"github.com/rs/zerolog/log"
)

// Controller drives one exam attempt through its lifecycle:
// Idle -> Preparing -> Connecting -> Active -> Finalizing -> {Completed, Aborted}.
// It is the single writer of its attempt and the sole caller authorized to
// hand a finished transcript's result to the recorder. One controller per
// attemptID, never reused; retrying means a new attempt.
type Controller struct {
	mu      sync.Mutex
	attempt model.ExamAttempt

	issuer   auth.CredentialIssuer
	dialer   transport.Dialer
	recorder service.ResultRecorder
	grader   service.GraderService

	connectTimeout time.Duration
	gracePeriod    time.Duration

	conn       transport.Conn
	credential *auth.Credential

	pendingResult *model.ExamResult

	// accepting guards resultCh: once the finalizer has settled on a
	// candidate it stops reading, and deliveries must be refused rather
	// than parked where nothing will consume them.
	accepting bool
	reply     chan service.SubmitOutcome

	endRequested chan model.EndReason
	resultCh     chan resultDelivery
	done         chan struct{}
}

// resultDelivery pairs an externally delivered result with the channel its
// caller is blocked on.
type resultDelivery struct {
	result *model.ExamResult
	reply  chan service.SubmitOutcome
}

func NewController(
	studentKey string,
	issuer auth.CredentialIssuer,
	dialer transport.Dialer,
	recorder service.ResultRecorder,
	grader service.GraderService,
	connectTimeout, gracePeriod time.Duration,
) *Controller {
	return &Controller{
		attempt: model.ExamAttempt{
			StudentKey: studentKey,
			State:      model.StateIdle,
		},
		issuer:         issuer,
		dialer:         dialer,
		recorder:       recorder,
		grader:         grader,
		connectTimeout: connectTimeout,
		gracePeriod:    gracePeriod,
		accepting:      true,
		endRequested:   make(chan model.EndReason, 1),
		resultCh:       make(chan resultDelivery, 1),
		done:           make(chan struct{}),
	}
}

// Begin performs the synchronous part of the lifecycle: Preparing (attempt id
// allocation, credential issuance) and the dial into Connecting. The caller is
// expected to have passed the preparation gate already. On success the event
// loop is running and the credential can be handed to the student client.
func (c *Controller) Begin(ctx context.Context) (*auth.Credential, error) {
	c.mu.Lock()
	if c.attempt.State != model.StateIdle {
		state := c.attempt.State
		c.mu.Unlock()
		return nil, fmt.Errorf("attempt already started (state %s)", state)
	}
	c.attempt.AttemptID = uuid.NewString()
	c.attempt.StartedAt = time.Now()
	c.attempt.State = model.StatePreparing
	attemptID := c.attempt.AttemptID
	studentKey := c.attempt.StudentKey
	c.mu.Unlock()

	log.Info().Str("attemptID", attemptID).Str("studentKey", studentKey).Msg("Attempt entering preparing")

	credential, err := c.issuer.Issue(studentKey, attemptID)
	if err != nil {
		c.abort(model.AbortConnectionFailed)
		close(c.done)
		return nil, fmt.Errorf("credential issuance failed: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()
	conn, err := c.dialer.Dial(dialCtx, credential.Endpoint, credential.Token)
	if err != nil {
		c.abort(model.AbortConnectionFailed)
		close(c.done)
		return nil, fmt.Errorf("media connection failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.credential = credential
	c.attempt.State = model.StateConnecting
	c.mu.Unlock()

	log.Info().Str("attemptID", attemptID).Msg("Attempt connecting, waiting for examiner presence")
	go c.run()
	return credential, nil
}

// End requests a user-initiated end of the attempt. It interrupts Active
// immediately but does not cancel an in-flight result submission.
func (c *Controller) End() error {
	c.mu.Lock()
	state := c.attempt.State
	c.mu.Unlock()

	if state.Terminal() {
		return fmt.Errorf("attempt is already %s", state)
	}
	if state == model.StateFinalizing {
		return fmt.Errorf("attempt is already finalizing")
	}
	if state == model.StateIdle || state == model.StatePreparing {
		return fmt.Errorf("attempt has no live session to end (state %s)", state)
	}

	select {
	case c.endRequested <- model.EndUserEnded:
	default:
		// an end is already queued
	}
	return nil
}

// DeliverResult feeds an agent-produced result into the attempt (the HTTP
// intake path, as opposed to the transport's result frame) and blocks until
// the recorder has processed this payload, returning its outcome. The outcome
// always describes the delivered payload; a delivery the finalizer will no
// longer consume is refused, never parked.
func (c *Controller) DeliverResult(ctx context.Context, result *model.ExamResult) (service.SubmitOutcome, error) {
	delivery := resultDelivery{result: result, reply: make(chan service.SubmitOutcome, 1)}

	c.mu.Lock()
	if c.attempt.State.Terminal() {
		state := c.attempt.State
		c.mu.Unlock()
		return service.SubmitOutcome{}, fmt.Errorf("attempt is already %s", state)
	}
	if !c.accepting {
		c.mu.Unlock()
		return service.SubmitOutcome{}, fmt.Errorf("attempt is no longer accepting results")
	}
	select {
	case c.resultCh <- delivery:
	default:
		c.mu.Unlock()
		return service.SubmitOutcome{}, fmt.Errorf("a result for this attempt is already being processed")
	}
	c.mu.Unlock()

	select {
	case outcome := <-delivery.reply:
		return outcome, nil
	case <-ctx.Done():
		return service.SubmitOutcome{}, ctx.Err()
	case <-c.done:
		// done and the reply can both be ready; prefer the verdict when
		// one was produced for this payload.
		select {
		case outcome := <-delivery.reply:
			return outcome, nil
		default:
		}
		return service.SubmitOutcome{}, fmt.Errorf("attempt finalized without processing this result")
	}
}

// Snapshot returns a copy of the attempt as it currently stands.
func (c *Controller) Snapshot() model.ExamAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.attempt
	snapshot.TranscriptFragments = append([]model.TranscriptTurn(nil), c.attempt.TranscriptFragments...)
	return snapshot
}

// Done is closed once the attempt reaches a terminal state.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// run is the single-writer event loop, live from Connecting until a terminal
// state. Transcript turns are appended in receipt order; the transport
// guarantees ordering within the connection.
func (c *Controller) run() {
	defer close(c.done)

	presenceTimer := time.NewTimer(c.connectTimeout)
	defer presenceTimer.Stop()

	for {
		select {
		case ev, ok := <-c.conn.Events():
			if !ok {
				c.finalize(model.EndDisconnected)
				return
			}
			switch ev.Type {
			case transport.EventPresenceJoined:
				c.onPresence()
			case transport.EventTurn:
				c.appendTurn(model.TranscriptTurn{Speaker: ev.Speaker, Text: ev.Text, At: ev.At})
			case transport.EventResult:
				result, err := c.decodeResult(ev.Result)
				if err != nil {
					log.Warn().Err(err).Str("attemptID", c.attemptID()).Msg("Ignoring malformed result frame from agent")
					continue
				}
				c.storePending(result)
				c.finalize(model.EndCompletedNormally)
				return
			case transport.EventClosed:
				if c.currentState() == model.StateConnecting {
					log.Warn().Err(ev.Err).Str("attemptID", c.attemptID()).Msg("Media connection closed before examiner joined")
					c.abort(model.AbortConnectionFailed)
					return
				}
				log.Warn().Err(ev.Err).Str("attemptID", c.attemptID()).Msg("Media connection lost during attempt")
				c.finalize(model.EndDisconnected)
				return
			}

		case delivery := <-c.resultCh:
			c.storePending(delivery.result)
			c.setReply(delivery.reply)
			c.finalize(model.EndCompletedNormally)
			return

		case reason := <-c.endRequested:
			c.finalize(reason)
			return

		case <-presenceTimer.C:
			if c.currentState() == model.StateConnecting {
				log.Warn().Str("attemptID", c.attemptID()).Dur("timeout", c.connectTimeout).Msg("Examiner did not join in time")
				_ = c.conn.Close()
				c.abort(model.AbortConnectionFailed)
				return
			}
		}
	}
}

// finalize converges all three end inputs (natural completion, user end,
// disconnect) on the Finalizing state, obtains a candidate result within the
// grace period, and submits it. The submission runs on a background context:
// once started it completes or exhausts its own retry budget, regardless of
// what the user does.
func (c *Controller) finalize(reason model.EndReason) {
	c.mu.Lock()
	if c.attempt.State.Terminal() {
		c.mu.Unlock()
		return
	}
	c.attempt.State = model.StateFinalizing
	c.attempt.EndReason = reason
	attemptID := c.attempt.AttemptID
	c.mu.Unlock()

	log.Info().Str("attemptID", attemptID).Str("reason", string(reason)).Msg("Attempt finalizing")
	_ = c.conn.Close()

	candidate := c.takePending()
	if candidate == nil {
		candidate = c.awaitResult()
	}
	c.closeIntake()
	if candidate == nil {
		// A delivery racing the grace deadline may have landed after
		// awaitResult gave up but before intake closed.
		select {
		case delivery := <-c.resultCh:
			c.setReply(delivery.reply)
			candidate = delivery.result
		default:
		}
	}
	if candidate == nil {
		log.Warn().Str("attemptID", attemptID).Dur("gracePeriod", c.gracePeriod).Msg("No result produced within grace period")
		c.abort(model.AbortNoResult)
		return
	}

	outcome := c.recorder.Submit(context.Background(), candidate)

	switch outcome.Status {
	case service.SubmitAccepted, service.SubmitDuplicate:
		c.complete()
	default:
		if outcome.Reason == service.RejectValidationError {
			c.abort(model.AbortValidationRejected)
		} else {
			c.abort(model.AbortStorageError)
		}
	}

	if reply := c.takeReply(); reply != nil {
		reply <- outcome
	}
}

// awaitResult waits out the grace period for a late result: either delivered
// externally (agent callback after a disconnect) or produced by the grader
// from the transcript accumulated so far.
func (c *Controller) awaitResult() *model.ExamResult {
	deadline := time.NewTimer(c.gracePeriod)
	defer deadline.Stop()

	graderCh := make(chan *model.ExamResult, 1)
	snapshot := c.Snapshot()
	if c.grader != nil && len(snapshot.TranscriptFragments) > 0 {
		go func() {
			gctx, cancel := context.WithTimeout(context.Background(), c.gracePeriod)
			defer cancel()
			result, err := c.grader.Grade(gctx, &snapshot)
			if err != nil {
				log.Warn().Err(err).Str("attemptID", snapshot.AttemptID).Msg("Grader could not produce a result")
				return
			}
			graderCh <- result
		}()
	}

	select {
	case delivery := <-c.resultCh:
		c.setReply(delivery.reply)
		return delivery.result
	case result := <-graderCh:
		return result
	case <-deadline.C:
		return nil
	}
}

func (c *Controller) onPresence() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt.State == model.StateConnecting {
		c.attempt.State = model.StateActive
		log.Info().Str("attemptID", c.attempt.AttemptID).Msg("Examiner joined, attempt active")
	}
}

func (c *Controller) appendTurn(turn model.TranscriptTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt.State != model.StateActive {
		return
	}
	c.attempt.TranscriptFragments = append(c.attempt.TranscriptFragments, turn)
}

func (c *Controller) decodeResult(raw json.RawMessage) (*model.ExamResult, error) {
	var sections map[string]model.SectionScore
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("failed to decode result frame: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return &model.ExamResult{
		AttemptID:  c.attempt.AttemptID,
		StudentKey: c.attempt.StudentKey,
		Sections:   sections,
		ComputedAt: time.Now(),
	}, nil
}

func (c *Controller) setReply(reply chan service.SubmitOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = reply
}

func (c *Controller) takeReply() chan service.SubmitOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply := c.reply
	c.reply = nil
	return reply
}

func (c *Controller) closeIntake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepting = false
}

func (c *Controller) storePending(result *model.ExamResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingResult = result
}

func (c *Controller) takePending() *model.ExamResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := c.pendingResult
	c.pendingResult = nil
	return result
}

func (c *Controller) complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.attempt.State = model.StateCompleted
	c.attempt.EndedAt = &now
	log.Info().Str("attemptID", c.attempt.AttemptID).Msg("Attempt completed")
}

func (c *Controller) abort(reason model.AbortReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt.State.Terminal() {
		return
	}
	now := time.Now()
	c.attempt.State = model.StateAborted
	c.attempt.AbortReason = reason
	c.attempt.EndedAt = &now
	log.Warn().Str("attemptID", c.attempt.AttemptID).Str("reason", string(reason)).Msg("Attempt aborted")
}

func (c *Controller) currentState() model.AttemptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.State
}

func (c *Controller) attemptID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.AttemptID
}
