package analysis

import (
	"context"
	"encoding/json"

	"github.com/catalogai/doc-analyzer/internal/cache"
	"github.com/catalogai/doc-analyzer/internal/provider"
)

// AnalyzeCached consults the result cache before analyzing. forceRefresh
// skips the read but still writes the fresh result back. There is no
// single-flight collapsing: concurrent identical requests each run.
func (s *Service) AnalyzeCached(ctx context.Context, doc Document, forceRefresh bool) (*provider.Result, bool, error) {
	key := cache.Key(doc.ID)

	if !forceRefresh {
		if raw, ok, err := s.store.Get(ctx, key); err != nil {
			s.log.Warn("analysis.cache_read_failed", "doc_id", doc.ID, "error", err)
		} else if ok {
			var res provider.Result
			if jerr := json.Unmarshal(raw, &res); jerr == nil {
				s.log.Debug("analysis.cache_hit", "doc_id", doc.ID)
				return &res, true, nil
			}
			// a corrupt entry is treated as a miss and overwritten below
			s.log.Warn("analysis.cache_corrupt_entry", "doc_id", doc.ID)
		}
	}

	res, err := s.Analyze(ctx, doc)
	if err != nil {
		return nil, false, err
	}

	if raw, jerr := json.Marshal(res); jerr == nil {
		if serr := s.store.Set(ctx, key, raw); serr != nil {
			s.log.Warn("analysis.cache_write_failed", "doc_id", doc.ID, "error", serr)
		}
	}
	return res, false, nil
}
