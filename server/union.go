package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/slogger"
	"github.com/mnemo-ai/mnemo/workingmemory"
)

// Origin tags for union search results.
const (
	OriginWorking  = "working"
	OriginLongTerm = "long-term"
)

// unionWeight balances textual working-memory scores against long-term
// fused scores.
const unionWeight = 0.5

// handleUnionSearch merges substring matches over working memory with
// semantic long-term results. Each side's score is halved and results are
// interleaved by combined score.
func (s *Server) handleUnionSearch(w http.ResponseWriter, r *http.Request) {
	var req mnemo.SearchRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	hits := s.searchWorking(r, &req)

	longTerm, err := s.longterm.Search(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for i := range longTerm.Memories {
		hit := longTerm.Memories[i]
		hit.Origin = OriginLongTerm
		hit.Score = unionWeight * hit.Score
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	total := len(hits)
	if req.Limit > 0 && req.Limit < len(hits) {
		hits = hits[:req.Limit]
	}
	writeJSON(w, http.StatusOK, &mnemo.MemoryRecordResults{Memories: hits, Total: total})
}

// searchWorking scans session messages for substring matches, scored by how
// much of the message the query covers. Store failures degrade to long-term
// results only.
func (s *Server) searchWorking(r *http.Request, req *mnemo.SearchRequest) []mnemo.MemoryRecordResult {
	logger := slogger.Ctx(r.Context())
	if req.Text == "" {
		return nil
	}
	namespace := ""
	if req.Namespace != nil {
		namespace = req.Namespace.Eq
	}

	var sessionIDs []string
	if req.SessionID != nil && req.SessionID.Eq != "" {
		sessionIDs = []string{req.SessionID.Eq}
	} else {
		listed, err := s.sessions.List(r.Context(), namespace, mnemo.MaxSearchLimit, 0)
		if err != nil {
			logger.Warn("listing sessions for union search failed", "error", err)
			return nil
		}
		sessionIDs = listed.Sessions
	}

	needle := strings.ToLower(req.Text)
	var hits []mnemo.MemoryRecordResult
	for _, id := range sessionIDs {
		wm, err := s.sessions.Get(r.Context(), namespace, id, workingmemory.Params{})
		if err != nil {
			continue
		}
		for _, msg := range wm.Messages {
			if !strings.Contains(strings.ToLower(msg.Content), needle) {
				continue
			}
			hits = append(hits, mnemo.MemoryRecordResult{
				MemoryRecord: mnemo.MemoryRecord{
					ID:         msg.ID,
					Text:       msg.Content,
					MemoryType: mnemo.MemoryTypeMessage,
					SessionID:  id,
					Namespace:  wm.Namespace,
					UserID:     wm.UserID,
				},
				Score:  unionWeight * coverage(needle, msg.Content),
				Origin: OriginWorking,
			})
		}
	}
	return hits
}

// coverage maps a substring match into [0, 1]: the share of the message the
// query accounts for.
func coverage(query, content string) float64 {
	if len(content) == 0 {
		return 0
	}
	c := float64(len(query)) / float64(len(content))
	if c > 1 {
		c = 1
	}
	return c
}
