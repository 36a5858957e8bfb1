package stores

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/internal/kv"
)

// TOTPReplay remembers accepted TOTP time steps per account.
type TOTPReplay struct {
	kv kv.Store
}

func NewTOTPReplay(store kv.Store) *TOTPReplay {
	return &TOTPReplay{kv: store}
}

// MarkUsed records step for accountID. It returns false when the step was
// already used.
func (r *TOTPReplay) MarkUsed(ctx context.Context, accountID string, step int64, ttl time.Duration) (bool, error) {
	key := "totp_used:" + accountID + ":" + strconv.FormatInt(step, 10)
	ok, err := r.kv.SetNX(ctx, key, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	return ok, nil
}
