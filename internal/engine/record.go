package engine

import (
	"context"
	"fmt"

	"github.com/roach88/edgelisp/internal/payload"
	"github.com/roach88/edgelisp/internal/store"
)

// Record is the engine's view of the current script. It outlives every VM.
type Record struct {
	Code     []byte
	Checksum uint32
	Persist  bool
	Failed   bool
}

// Record returns a copy of the current script record.
func (e *Engine) Record() Record {
	r := e.record
	r.Code = append([]byte(nil), r.Code...)
	return r
}

// LoadScript applies the dedup policy to a delivered script and runs it when
// the policy says so. Reports whether the script ran.
//
// The first script received since boot always runs. After that a script is
// ignored when its checksum matches the current record, the record is
// persistent and the last run did not fail. force skips the check.
//
// The returned error is the script's own failure, if any.
func (e *Engine) LoadScript(ctx context.Context, code []byte, persist, force bool) (bool, error) {
	checksum := payload.Checksum(code)
	first := !e.received
	e.received = true

	if !first && !force && checksum == e.record.Checksum && e.record.Persist && !e.record.Failed {
		e.stats.ignored++
		e.logger.Info("script ignored", "checksum", fmt.Sprintf("%08x", checksum))
		return false, nil
	}

	e.record = Record{
		Code:     append([]byte(nil), code...),
		Checksum: checksum,
		Persist:  persist,
	}
	e.persist(ctx)

	e.logger.Info("script loaded",
		"checksum", fmt.Sprintf("%08x", checksum),
		"persist", persist,
		"force", force,
		"first", first,
	)
	return true, e.RunCode(code)
}

// Restore reads the stored script record and runs it if it was marked
// persistent. Returns false when nothing was restored.
//
// Restoring does not count as receiving a script: the next delivered script
// still runs unconditionally.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	if e.store == nil {
		return false, nil
	}
	rec, ok, err := e.store.RestoreScript(ctx)
	if err != nil {
		e.logger.Warn("script restore failed", "error", err)
		return false, nil
	}
	if !ok {
		e.logger.Debug("no stored script")
		return false, nil
	}

	code := []byte(rec.Code)
	e.record = Record{Code: code, Checksum: payload.Checksum(code), Persist: rec.Persist}
	if e.record.Checksum != rec.Checksum {
		e.logger.Warn("stored script checksum mismatch",
			"stored", fmt.Sprintf("%08x", rec.Checksum),
			"computed", fmt.Sprintf("%08x", e.record.Checksum),
		)
	}
	if !rec.Persist {
		e.logger.Info("stored script not persistent, skipping")
		return false, nil
	}

	e.logger.Info("restoring script", "checksum", fmt.Sprintf("%08x", e.record.Checksum))
	return true, e.RunCode(code)
}

// persist writes the record. Storage failures are logged; the in-memory
// record stays authoritative.
func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	rec := store.ScriptRecord{
		Code:     string(e.record.Code),
		Persist:  e.record.Persist,
		Checksum: e.record.Checksum,
	}
	if err := e.store.StoreScript(ctx, rec); err != nil {
		e.logger.Warn("script persist failed", "error", err)
	}
}
