package subvault

import (
	"context"
	"fmt"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/types"
)

// InitParams configure a vault once, at Init.
type InitParams struct {
	Token         types.Address
	TokenDecimals uint32
	Admin         types.Address
	MinTopup      types.Amount
	// GracePeriod is in seconds; zero disables the grace state.
	GracePeriod uint64
}

// Init writes the vault configuration. It succeeds once; later calls fail
// ErrAlreadyInitialized.
func (v *Vault) Init(ctx context.Context, p InitParams) error {
	var s *settings.Settings
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		if p.Token.IsZero() || p.Admin.IsZero() {
			return fmt.Errorf("%w: token and admin are required", ErrInvalidInput)
		}
		if err := types.ValidateNonNegative(p.MinTopup); err != nil {
			return err
		}

		s = &settings.Settings{
			Entity:        types.NewEntity(),
			Token:         p.Token,
			TokenDecimals: p.TokenDecimals,
			Admin:         p.Admin,
			MinTopup:      p.MinTopup,
			GracePeriod:   p.GracePeriod,
			SchemaVersion: settings.SchemaVersion,
		}
		if err := v.store.CreateSettings(ctx, s); err != nil {
			return err
		}

		ob.add(func(ctx context.Context) { v.plugins.EmitVaultInitialized(ctx, s) })
		return nil
	})
	if err != nil {
		return err
	}

	v.logger.Info("vault initialized",
		"token", s.Token,
		"admin", s.Admin,
		"min_topup", s.MinTopup,
		"grace_period", s.GracePeriod,
	)
	return nil
}

// SetMinTopup changes the smallest accepted deposit.
func (v *Vault) SetMinTopup(ctx context.Context, admin types.Address, minTopup types.Amount) error {
	if err := v.updateSettings(ctx, admin, "min_topup", func(s *settings.Settings) error {
		if minTopup.IsNegative() {
			return ErrInvalidAmount
		}
		s.MinTopup = minTopup
		return nil
	}); err != nil {
		return err
	}

	v.logger.Info("min topup updated", "min_topup", minTopup)
	return nil
}

// SetGracePeriod changes the grace window, in seconds, applied after a
// missed interval charge.
func (v *Vault) SetGracePeriod(ctx context.Context, admin types.Address, seconds uint64) error {
	if err := v.updateSettings(ctx, admin, "grace_period", func(s *settings.Settings) error {
		s.GracePeriod = seconds
		return nil
	}); err != nil {
		return err
	}

	v.logger.Info("grace period updated", "grace_period", seconds)
	return nil
}

func (v *Vault) updateSettings(ctx context.Context, admin types.Address, field string, apply func(*settings.Settings) error) error {
	return v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		s, err := v.requireAdmin(ctx, admin)
		if err != nil {
			return err
		}
		if err := apply(s); err != nil {
			return err
		}
		s.Touch()
		if err := v.store.UpdateSettings(ctx, s); err != nil {
			return err
		}

		ob.add(func(ctx context.Context) { v.plugins.EmitSettingsUpdated(ctx, s, field) })
		return nil
	})
}

// RotateAdmin hands the admin role to newAdmin. The change is immediate:
// the current admin loses access as soon as the call returns.
func (v *Vault) RotateAdmin(ctx context.Context, currentAdmin, newAdmin types.Address) error {
	now := v.clock.Now()
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		s, err := v.requireAdmin(ctx, currentAdmin)
		if err != nil {
			return err
		}
		if newAdmin.IsZero() {
			return fmt.Errorf("%w: new admin is required", ErrInvalidInput)
		}

		s.Admin = newAdmin
		s.Touch()
		if err := v.store.UpdateSettings(ctx, s); err != nil {
			return err
		}

		ob.add(func(ctx context.Context) { v.plugins.EmitAdminRotated(ctx, currentAdmin, newAdmin, now) })
		return nil
	})
	if err != nil {
		return err
	}

	v.logger.Info("admin rotated",
		"old_admin", currentAdmin,
		"new_admin", newAdmin,
		"timestamp", now,
	)
	return nil
}

// RecoverStrandedFunds sends amount from the vault to recipient. It is an
// exceptional admin path; every call is persisted as a recovery.Record,
// emitted to plugins and logged.
func (v *Vault) RecoverStrandedFunds(ctx context.Context, admin, recipient types.Address, amount types.Amount, reason recovery.Reason) (*recovery.Record, error) {
	var rec *recovery.Record
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		if _, err := v.requireAdmin(ctx, admin); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return ErrInvalidRecoveryAmount
		}
		if !reason.IsValid() {
			return fmt.Errorf("%w: recovery reason %q", ErrInvalidInput, reason)
		}
		if recipient.IsZero() {
			return fmt.Errorf("%w: recipient is required", ErrInvalidInput)
		}

		rec = &recovery.Record{
			Entity:    types.NewEntity(),
			ID:        id.NewRecoveryID(),
			Admin:     admin,
			Recipient: recipient,
			Amount:    amount,
			Reason:    reason,
			Timestamp: v.clock.Now(),
		}
		if err := v.store.CreateRecovery(ctx, rec); err != nil {
			return err
		}
		if err := v.token.Transfer(ctx, v.address, recipient, amount); err != nil {
			return v.undo(ctx, err, "recovery record", func(ctx context.Context) error {
				return v.store.DeleteRecovery(ctx, rec.ID)
			})
		}

		ob.add(func(ctx context.Context) { v.plugins.EmitFundsRecovered(ctx, rec) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	v.logger.Warn("stranded funds recovered",
		"recovery_id", rec.ID,
		"admin", admin,
		"recipient", recipient,
		"amount", amount,
		"reason", reason,
	)
	return rec, nil
}

// ──────────────────────────────────────────────────
// Configuration reads
// ──────────────────────────────────────────────────

// Settings returns the vault configuration.
func (v *Vault) Settings(ctx context.Context) (*settings.Settings, error) {
	return v.loadSettings(ctx)
}

// GetAdmin returns the current admin address.
func (v *Vault) GetAdmin(ctx context.Context) (types.Address, error) {
	s, err := v.loadSettings(ctx)
	if err != nil {
		return "", err
	}
	return s.Admin, nil
}

// GetMinTopup returns the smallest accepted deposit.
func (v *Vault) GetMinTopup(ctx context.Context) (types.Amount, error) {
	s, err := v.loadSettings(ctx)
	if err != nil {
		return types.Amount{}, err
	}
	return s.MinTopup, nil
}

// GetGracePeriod returns the grace window in seconds.
func (v *Vault) GetGracePeriod(ctx context.Context) (uint64, error) {
	s, err := v.loadSettings(ctx)
	if err != nil {
		return 0, err
	}
	return s.GracePeriod, nil
}

// ListRecoveries returns recovery records, oldest first.
func (v *Vault) ListRecoveries(ctx context.Context, opts recovery.ListOpts) ([]*recovery.Record, error) {
	return v.store.ListRecoveries(ctx, opts)
}
