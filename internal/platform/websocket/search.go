package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hsba/emr/internal/platform/debounce"
	"github.com/hsba/emr/pkg/pagination"
)

// SearchTimeout bounds a single search run.
const SearchTimeout = 10 * time.Second

// EventSearchResults carries a page of search results.
const EventSearchResults = "search.results"

// SearchState is the query a search session last asked for.
type SearchState struct {
	View   string `json:"view"`
	Query  string `json:"query"`
	Filter string `json:"filter"`
	Page   int    `json:"page"`
}

// Params returns the page of s at the given page size.
func (s SearchState) Params(size int) pagination.Params {
	return pagination.Params{Page: s.Page, Size: size}
}

// SearchFunc runs a list query for one view.
type SearchFunc func(ctx context.Context, s SearchState) (*pagination.Response, error)

// SearchResults is the data of an EventSearchResults event.
type SearchResults struct {
	State  SearchState          `json:"state"`
	Result *pagination.Response `json:"result"`
}

type session struct {
	mu        sync.Mutex
	state     SearchState
	debouncer *debounce.Debouncer
}

// HandleSearch registers the search function for view.
func (h *Hub) HandleSearch(view string, fn SearchFunc) {
	h.searchMu.Lock()
	defer h.searchMu.Unlock()
	h.searchers[view] = fn
}

func (h *Hub) searcher(view string) SearchFunc {
	h.searchMu.RLock()
	defer h.searchMu.RUnlock()
	return h.searchers[view]
}

// Search applies msg to the client's search session. A changed query
// waits for the quiet period and replaces any pending query; a changed
// view or filter runs at once from page 1, as does a page change.
func (h *Hub) Search(client *Client, msg ClientMessage) {
	fn := h.searcher(msg.View)
	if fn == nil {
		h.sendError(client, "unknown search view "+msg.View)
		return
	}

	next := SearchState{View: msg.View, Query: msg.Query, Filter: msg.Filter, Page: msg.Page}
	if next.Page < 1 {
		next.Page = 1
	}

	s := client.search
	s.mu.Lock()
	prev := s.state
	immediate := true
	switch {
	case prev.View != next.View || prev.Filter != next.Filter:
		next.Page = next.Params(0).Reset().Page
	case prev.Query != next.Query:
		next.Page = next.Params(0).Reset().Page
		immediate = false
	}
	s.state = next
	s.mu.Unlock()

	if immediate {
		s.debouncer.Cancel()
		h.runSearch(client, fn, next)
		return
	}
	s.debouncer.Trigger(func() { h.runSearch(client, fn, next) })
}

func (h *Hub) runSearch(client *Client, fn SearchFunc, state SearchState) {
	ctx, cancel := context.WithTimeout(context.Background(), SearchTimeout)
	defer cancel()

	res, err := fn(ctx, state)
	if err != nil {
		h.logger.Error().Err(err).Str("client_id", client.ID).Str("view", state.View).Msg("websocket: search failed")
		h.sendError(client, "search failed")
		return
	}
	data, err := json.Marshal(SearchResults{State: state, Result: res})
	if err != nil {
		return
	}
	h.deliver(client, Event{Type: EventSearchResults, Topic: state.View, Data: data})
}

// Pending reports whether the client has a debounced query waiting.
func (c *Client) Pending() bool {
	return c.search != nil && c.search.debouncer.Pending()
}
