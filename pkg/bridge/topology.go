package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/attaradev/jetstream-bridge/pkg/logger"
)

// overlapRetryDelay is how long Ensure pauses before retrying a single
// CreateStream/UpdateStream call that failed because the broker considers
// the requested subjects to overlap a stream this reconciler just listed as
// foreign - the kind of listing race that clears itself almost immediately.
const overlapRetryDelay = 50 * time.Millisecond

// isOverlapError reports whether err is the broker rejecting a stream
// create/update because its subjects overlap another stream's, identified
// by the error text NATS JetStream is known to return for this condition
// (ErrStreamSubjectOverlap's message, its JSAPI err_code, and the generic
// HTTP-flavored status_code APIError carries).
func isOverlapError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "subjects overlap") ||
		strings.Contains(msg, "err_code 10065") ||
		strings.Contains(msg, "status_code 400")
}

// streamManager is the slice of jetstream.JetStream the Reconciler needs.
// Narrowing to an interface (rather than depending on jetstream.JetStream
// directly) lets tests exercise reconciliation logic against a hand-written
// fake instead of a live NATS server.
type streamManager interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	StreamNames(ctx context.Context) jetstream.StreamNameLister
}

// Reconciler creates and updates the JetStream stream backing a bridge
// instance, idempotently, and guards against silently stealing subjects
// already claimed by a foreign stream.
type Reconciler struct {
	js         streamManager
	streamName string
}

// NewReconciler builds a Reconciler for the given stream.
func NewReconciler(js streamManager, streamName string) *Reconciler {
	return &Reconciler{js: js, streamName: streamName}
}

// Ensure creates the reconciler's stream if absent, or updates it so its
// subject list is the union of its current subjects and wanted - unless a
// wanted subject overlaps a subject already owned by a different stream,
// in which case that subject is skipped (re-checked once against a fresh
// listing in case of a transient listing race) and a warning is logged rather than
// the reconciler silently annexing another stream's traffic.
func (r *Reconciler) Ensure(ctx context.Context, wanted []string) error {
	foreign, err := r.foreignSubjects(ctx)
	if err != nil {
		return WrapConnectionError(err)
	}

	safe, conflicts := r.partitionSafe(wanted, foreign)
	if len(conflicts) > 0 {
		foreign, err = r.foreignSubjects(ctx)
		if err == nil {
			retrySafe, retryConflicts := r.partitionSafe(conflicts, foreign)
			safe = append(safe, retrySafe...)
			conflicts = retryConflicts
		}
		for subject, owner := range conflicts {
			logger.L().Warn("topology: subject already owned by foreign stream, skipping",
				"subject", subject, "foreign_stream", owner, "managed_stream", r.streamName)
		}
	}

	stream, err := r.js.Stream(ctx, r.streamName)
	if err != nil {
		streamCfg := jetstream.StreamConfig{Name: r.streamName, Subjects: safe}
		_, createErr := r.js.CreateStream(ctx, streamCfg)
		if createErr != nil {
			if !isOverlapError(createErr) {
				return WrapConnectionError(fmt.Errorf("create stream %s: %w", r.streamName, createErr))
			}
			time.Sleep(overlapRetryDelay)
			if _, retryErr := r.js.CreateStream(ctx, streamCfg); retryErr != nil {
				logger.L().Warn("topology: create stream still overlaps a foreign stream after retry, skipping",
					"stream", r.streamName, "error", retryErr)
				return nil
			}
		}
		logger.L().Info("topology: created stream", "stream", r.streamName, "subjects", safe)
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return WrapConnectionError(fmt.Errorf("get stream info %s: %w", r.streamName, err))
	}

	merged := mergeSubjects(info.Config.Subjects, safe)
	if subjectsEqual(info.Config.Subjects, merged) {
		return nil
	}

	updated := info.Config
	updated.Subjects = merged
	if _, err := r.js.UpdateStream(ctx, updated); err != nil {
		if !isOverlapError(err) {
			return WrapConnectionError(fmt.Errorf("update stream %s: %w", r.streamName, err))
		}
		time.Sleep(overlapRetryDelay)
		if _, retryErr := r.js.UpdateStream(ctx, updated); retryErr != nil {
			logger.L().Warn("topology: update stream still overlaps a foreign stream after retry, skipping",
				"stream", r.streamName, "error", retryErr)
			return nil
		}
	}
	logger.L().Info("topology: updated stream subjects", "stream", r.streamName, "subjects", merged)
	return nil
}

// partitionSafe splits wanted into subjects with no foreign owner and a
// map of subjects to the foreign stream that owns them.
func (r *Reconciler) partitionSafe(wanted []string, foreign map[string]string) (safe []string, conflicts map[string]string) {
	conflicts = make(map[string]string)
	for _, w := range wanted {
		if owner, ok := foreign[w]; ok {
			conflicts[w] = owner
			continue
		}
		owned := false
		for pattern, owner := range foreign {
			if Overlaps(pattern, w) {
				conflicts[w] = owner
				owned = true
				break
			}
		}
		if !owned {
			safe = append(safe, w)
		}
	}
	return safe, conflicts
}

// foreignSubjects lists every subject pattern claimed by a stream other
// than the one this reconciler manages.
func (r *Reconciler) foreignSubjects(ctx context.Context) (map[string]string, error) {
	result := make(map[string]string)
	names := r.js.StreamNames(ctx)
	for name := range names.Name() {
		if name == r.streamName {
			continue
		}
		stream, err := r.js.Stream(ctx, name)
		if err != nil {
			continue
		}
		info, err := stream.Info(ctx)
		if err != nil {
			continue
		}
		for _, subj := range info.Config.Subjects {
			result[subj] = name
		}
	}
	if err := names.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func mergeSubjects(existing, wanted []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(wanted))
	out := make([]string, 0, len(existing)+len(wanted))
	for _, s := range existing {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range wanted {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func subjectsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
