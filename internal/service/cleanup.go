package service

import (
	"context"
	"fmt"
	"time"

	"bitwise74/accounts-api/internal/model"

	"go.uber.org/zap"
)

// ConfirmationRetention is how long used and expired keys are kept around
const ConfirmationRetention = 7 * 24 * time.Hour

// CleanupConfirmations deletes confirmation keys that were used or expired
// more than ConfirmationRetention ago.
func (a *Accounts) CleanupConfirmations(ctx context.Context) (int64, error) {
	cutoff := a.now().Add(-ConfirmationRetention)

	res := a.db.WithContext(ctx).
		Where("expires_at < ? OR (used_at IS NOT NULL AND used_at < ?)", cutoff, cutoff).
		Delete(&model.EmailConfirmation{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clean up confirmations, %w", res.Error)
	}

	zap.L().Debug("Cleaned up e-mail confirmations", zap.Int64("deleted", res.RowsAffected), zap.Time("cutoff", cutoff))
	return res.RowsAffected, nil
}
