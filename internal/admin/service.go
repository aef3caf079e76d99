// ABOUTME: Administrative operations over group moderation settings
// ABOUTME: Load-or-default mutation of settings plus warning ledger inspection

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/groupwarden/internal/store"
)

// maxRulesLength bounds the group rules text so a runaway paste does not
// end up in every welcome message.
const maxRulesLength = 4000

// Service exposes the administrative operations group admins reach
// through the command channel. Every mutation follows load-or-default:
// a group with no settings row starts from defaults, so toggling a
// single flag on a fresh group works without a separate create step.
type Service struct {
	settings store.SettingsStore
	warnings store.WarningStore
	logger   *slog.Logger
}

// NewService creates an admin service over the given stores.
func NewService(settings store.SettingsStore, warnings store.WarningStore, logger *slog.Logger) *Service {
	return &Service{
		settings: settings,
		warnings: warnings,
		logger:   logger.With("component", "admin"),
	}
}

// Status returns the group's current settings. A group with no stored
// row reports defaults with everything off.
func (s *Service) Status(ctx context.Context, groupID string) (*store.GroupSettings, error) {
	settings, err := s.settings.GetGroupSettings(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return store.NewGroupSettings(groupID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return settings, nil
}

// SetEnabled turns moderation on or off for the group.
func (s *Service) SetEnabled(ctx context.Context, groupID string, on bool) error {
	return s.mutate(ctx, groupID, func(g *store.GroupSettings) error {
		g.Enabled = on
		return nil
	})
}

// SetBlockLinks toggles the link-blocking rule.
func (s *Service) SetBlockLinks(ctx context.Context, groupID string, on bool) error {
	return s.mutate(ctx, groupID, func(g *store.GroupSettings) error {
		g.BlockLinks = on
		return nil
	})
}

// SetBlockMedia toggles the media-blocking rule.
func (s *Service) SetBlockMedia(ctx context.Context, groupID string, on bool) error {
	return s.mutate(ctx, groupID, func(g *store.GroupSettings) error {
		g.BlockMedia = on
		return nil
	})
}

// SetWelcome toggles welcome notices for new members.
func (s *Service) SetWelcome(ctx context.Context, groupID string, on bool) error {
	return s.mutate(ctx, groupID, func(g *store.GroupSettings) error {
		g.Welcome = on
		return nil
	})
}

// SetFarewell toggles farewell notices for departing members.
func (s *Service) SetFarewell(ctx context.Context, groupID string, on bool) error {
	return s.mutate(ctx, groupID, func(g *store.GroupSettings) error {
		g.Farewell = on
		return nil
	})
}

// SetRules sets the rules text shown in welcome notices. An empty
// string clears it.
func (s *Service) SetRules(ctx context.Context, groupID, rules string) error {
	rules = strings.TrimSpace(rules)
	if len(rules) > maxRulesLength {
		return fmt.Errorf("rules text exceeds %d characters", maxRulesLength)
	}
	return s.mutate(ctx, groupID, func(g *store.GroupSettings) error {
		g.Rules = rules
		return nil
	})
}

// SetMaxWarnings sets the warning threshold at which members are
// removed. Must be at least 1.
func (s *Service) SetMaxWarnings(ctx context.Context, groupID string, n int) error {
	if n < 1 {
		return fmt.Errorf("warning threshold must be at least 1, got %d", n)
	}
	return s.mutate(ctx, groupID, func(g *store.GroupSettings) error {
		g.MaxWarnings = n
		return nil
	})
}

// AddBannedWord adds a word to the group's banned list. Idempotent.
func (s *Service) AddBannedWord(ctx context.Context, groupID, word string) error {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return errors.New("banned word must not be empty")
	}
	return s.settings.AddBannedWord(ctx, groupID, word)
}

// RemoveBannedWord removes a word from the banned list. Removing an
// absent word is not an error.
func (s *Service) RemoveBannedWord(ctx context.Context, groupID, word string) error {
	return s.settings.RemoveBannedWord(ctx, groupID, strings.ToLower(strings.TrimSpace(word)))
}

// AddWhitelist exempts a user from all moderation rules in the group.
func (s *Service) AddWhitelist(ctx context.Context, groupID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id must not be empty")
	}
	return s.settings.AddWhitelist(ctx, groupID, userID)
}

// RemoveWhitelist removes a user's exemption.
func (s *Service) RemoveWhitelist(ctx context.Context, groupID, userID string) error {
	return s.settings.RemoveWhitelist(ctx, groupID, strings.TrimSpace(userID))
}

// Warning returns a user's current warning count in the group. No
// ledger entry means zero.
func (s *Service) Warning(ctx context.Context, groupID, userID string) (int, error) {
	warning, err := s.warnings.GetWarning(ctx, groupID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading warning: %w", err)
	}
	return warning.Count, nil
}

// ResetWarning clears a user's warning ledger in the group.
func (s *Service) ResetWarning(ctx context.Context, groupID, userID string) error {
	if err := s.warnings.ResetWarning(ctx, groupID, userID); err != nil {
		return fmt.Errorf("resetting warning: %w", err)
	}
	s.logger.Info("warnings reset", "group_id", groupID, "user_id", userID)
	return nil
}

// mutate loads the group's settings (or defaults), applies fn, and
// writes the result back.
func (s *Service) mutate(ctx context.Context, groupID string, fn func(*store.GroupSettings) error) error {
	settings, err := s.settings.GetGroupSettings(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		settings = store.NewGroupSettings(groupID)
	} else if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	if err := fn(settings); err != nil {
		return err
	}

	if err := s.settings.UpsertGroupSettings(ctx, settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
