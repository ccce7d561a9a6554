package repository

import (
	"time"

	"gorm.io/gorm"
)

const (
	// StaleClaimReason is stored on records whose claim outlived the claim TTL after the platform was called
	StaleClaimReason = "publication claim expired before a result was recorded"
	// ReleasedClaimReason is stored on records whose claim expired before the platform was called
	ReleasedClaimReason = "publication claim expired before the platform was called"
)

// StaleClaims counts the outcome of one expiry sweep
type StaleClaims struct {
	Failed   int64
	Released int64
}

// publicationStates names the status values of one table's publication state machine
type publicationStates struct {
	ready   any
	claimed any
	done    any
	failed  any
}

func listDue[T any](db *gorm.DB, st publicationStates, now time.Time, limit int) ([]*T, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*T
	err := db.Where("status = ? AND scheduled_at <= ?", st.ready, now).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// claimRecord is a compare-and-swap from the ready status to the claimed status.
// It returns the attempt number stored by the claim.
func claimRecord(db *gorm.DB, model any, id uint, st publicationStates, now time.Time) (int, bool, error) {
	res := db.Model(model).
		Where("id = ? AND status = ?", id, st.ready).
		Updates(map[string]any{
			"status":          st.claimed,
			"claimed_at":      now,
			"dispatched_at":   nil,
			"next_attempt_at": nil,
			"attempts":        gorm.Expr("attempts + 1"),
			"updated_at":      now,
		})
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected != 1 {
		return 0, false, nil
	}

	var attempts []int
	if err := db.Model(model).Where("id = ? AND status = ?", id, st.claimed).Pluck("attempts", &attempts).Error; err != nil {
		return 0, true, err
	}
	if len(attempts) == 0 {
		return 0, true, ErrClaimLost
	}
	return attempts[0], true, nil
}

// finishClaimed applies a single write to a record that is still claimed
func finishClaimed(db *gorm.DB, model any, id uint, st publicationStates, updates map[string]any) error {
	res := db.Model(model).
		Where("id = ? AND status = ?", id, st.claimed).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

func dispatchedUpdates(now time.Time) map[string]any {
	return map[string]any{
		"dispatched_at": now,
		"updated_at":    now,
	}
}

func publishedUpdates(st publicationStates, externalID string, now time.Time) map[string]any {
	return map[string]any{
		"status":        st.done,
		"external_id":   externalID,
		"published_at":  now,
		"claimed_at":    nil,
		"dispatched_at": nil,
		"last_error":    nil,
		"updated_at":    now,
	}
}

func failedUpdates(st publicationStates, reason string, now time.Time) map[string]any {
	return map[string]any{
		"status":        st.failed,
		"external_id":   nil,
		"claimed_at":    nil,
		"dispatched_at": nil,
		"last_error":    reason,
		"updated_at":    now,
	}
}

func releasedUpdates(st publicationStates, nextAttemptAt time.Time, reason string, now time.Time) map[string]any {
	return map[string]any{
		"status":          st.ready,
		"claimed_at":      nil,
		"dispatched_at":   nil,
		"next_attempt_at": nextAttemptAt,
		"last_error":      reason,
		"updated_at":      now,
	}
}

// unclaimedUpdates return a record to the scheduler without spending an attempt
func unclaimedUpdates(st publicationStates, reason string, now time.Time) map[string]any {
	return map[string]any{
		"status":        st.ready,
		"claimed_at":    nil,
		"dispatched_at": nil,
		"attempts":      gorm.Expr("GREATEST(attempts - 1, 0)"),
		"last_error":    reason,
		"updated_at":    now,
	}
}

// expireStaleClaims fails stale claims that reached the platform and releases those that never did
func expireStaleClaims(db *gorm.DB, model any, st publicationStates, claimedBefore, now time.Time) (StaleClaims, error) {
	var out StaleClaims

	res := db.Model(model).
		Where("status = ? AND claimed_at < ? AND dispatched_at IS NOT NULL", st.claimed, claimedBefore).
		Updates(failedUpdates(st, StaleClaimReason, now))
	if res.Error != nil {
		return out, res.Error
	}
	out.Failed = res.RowsAffected

	res = db.Model(model).
		Where("status = ? AND claimed_at < ? AND dispatched_at IS NULL", st.claimed, claimedBefore).
		Updates(unclaimedUpdates(st, ReleasedClaimReason, now))
	if res.Error != nil {
		return out, res.Error
	}
	out.Released = res.RowsAffected
	return out, nil
}
