package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/repository"
)

// KeywordError marks an attempt as a soft failure because an operator-listed
// substring appeared in the upstream body.
type KeywordError struct {
	Keyword string
}

func (e *KeywordError) Error() string {
	return fmt.Sprintf("Failure keyword found: '%s'", e.Keyword)
}

// FailureKeyword is one active sentinel entry, keyword pre-lowercased.
type FailureKeyword struct {
	ID      int64
	Keyword string
}

// Sentinel scans upstream response bodies for operator-configured failure
// substrings.
type Sentinel struct {
	keywords repository.KeywordRepository
	logger   *zap.Logger
}

// NewSentinel creates a new Sentinel.
func NewSentinel(keywords repository.KeywordRepository, logger *zap.Logger) *Sentinel {
	return &Sentinel{keywords: keywords, logger: logger}
}

// Load fetches the active keywords, lowercased for matching. A load failure
// yields an empty set so requests are not blocked on the keyword table.
func (s *Sentinel) Load(ctx context.Context) []FailureKeyword {
	active, err := s.keywords.FindAllActive(ctx)
	if err != nil {
		s.logger.Warn("failed to load failure keywords", zap.Error(err))
		return nil
	}
	keywords := make([]FailureKeyword, 0, len(active))
	for _, kw := range active {
		keywords = append(keywords, FailureKeyword{
			ID:      kw.ID,
			Keyword: strings.ToLower(kw.Keyword),
		})
	}
	return keywords
}

// Match returns the first keyword found in text, which the caller must have
// lowercased already (streaming accumulates lowercased chunks, so matching
// stays a plain substring test per chunk).
func Match(keywords []FailureKeyword, text string) *FailureKeyword {
	for i := range keywords {
		if strings.Contains(text, keywords[i].Keyword) {
			return &keywords[i]
		}
	}
	return nil
}

// RecordTrigger stamps the keyword's last match time. Best effort, detached
// from the request context which may already be cancelled.
func (s *Sentinel) RecordTrigger(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.keywords.TouchTriggered(ctx, id); err != nil {
		s.logger.Warn("failed to record keyword trigger", zap.Int64("keyword_id", id), zap.Error(err))
	}
}
