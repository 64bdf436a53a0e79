package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rickgao/stockdesk/internal/app"
	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/orderqueue"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Connection model.ConnectionStatus `json:"connection"`
	Queued     int                    `json:"queued"`
}

// ConnectionResponse is returned by GET /connection.
type ConnectionResponse struct {
	Status            model.ConnectionStatus `json:"status"`
	ReconnectAttempts int                    `json:"reconnectAttempts"`
	Subscriptions     int                    `json:"subscriptions"`
	BatchesDelivered  int64                  `json:"batchesDelivered"`
	UpdatesDelivered  int64                  `json:"updatesDelivered"`
	FramesDropped     int64                  `json:"framesDropped"`
}

// DrainResponse is returned by POST /queue/drain.
type DrainResponse struct {
	Filled    int `json:"filled"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
	Retried   int `json:"retried"`
	Remaining int `json:"remaining"`
}

type watchlistRequest struct {
	Symbol string `json:"symbol"`
}

type resolveRequest struct {
	Action model.ResolveAction `json:"action"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	st := s.desk.Store()
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Connection: st.ConnectionStatus(),
		Queued:     st.QueueLen(),
	})
}

// Quotes

func (s *Server) listQuotes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, list(s.desk.Store().Quotes()))
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	q, ok := s.desk.Store().Quote(symbol)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "no quote for " + symbol})
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

func (s *Server) getCandles(w http.ResponseWriter, r *http.Request) {
	tf, err := model.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_timeframe", err)
		return
	}
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	s.writeJSON(w, http.StatusOK, list(s.desk.Quotes().FetchCandles(r.Context(), symbol, tf)))
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, list(s.desk.Quotes().Search(r.Context(), r.URL.Query().Get("q"))))
}

// Watch-list

func (s *Server) listWatchlist(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, list(s.desk.Store().Watchlist()))
}

func (s *Server) addWatchlist(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}

	added, err := s.desk.AddToWatchlist(r.Context(), req.Symbol)
	switch {
	case errors.Is(err, model.ErrEmptySymbol):
		s.writeError(w, http.StatusBadRequest, "invalid_symbol", err)
		return
	case err != nil:
		s.logger.Error("add to watch-list", "symbol", req.Symbol, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, list(s.desk.Store().Watchlist()))
}

func (s *Server) removeWatchlist(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	removed, err := s.desk.RemoveFromWatchlist(symbol)
	if err != nil {
		s.logger.Error("remove from watch-list", "symbol", symbol, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	if !removed {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "not watched: " + symbol})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Orders

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	st := s.desk.Store()
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		s.writeJSON(w, http.StatusOK, list(st.OrdersBySymbol(symbol)))
		return
	}
	s.writeJSON(w, http.StatusOK, list(st.Orders()))
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req app.OrderRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}

	res, err := s.desk.SubmitOrder(r.Context(), req)
	if err != nil {
		if isOrderValidation(err) {
			s.writeError(w, http.StatusBadRequest, "invalid_order", err)
			return
		}
		s.logger.Error("submit order", "symbol", req.Symbol, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	// Anything that ended in the queue has not been executed yet.
	status := http.StatusCreated
	if res.Queued != nil {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, res)
}

func isOrderValidation(err error) bool {
	for _, target := range []error{
		model.ErrEmptySymbol,
		model.ErrInvalidSide,
		model.ErrInvalidQuantity,
		model.ErrInvalidPrice,
		app.ErrNoPrice,
		app.ErrQuantityTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Queue and conflicts

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, list(s.desk.Store().Queue()))
}

func (s *Server) drain(w http.ResponseWriter, r *http.Request) {
	res, err := s.desk.Drain(r.Context())
	if errors.Is(err, orderqueue.ErrDrainInFlight) {
		s.writeError(w, http.StatusConflict, "drain_in_flight", err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	s.writeJSON(w, http.StatusOK, DrainResponse{
		Filled:    res.Filled,
		Failed:    res.Failed,
		Conflicts: res.Conflicts,
		Retried:   res.Retried,
		Remaining: s.desk.Store().QueueLen(),
	})
}

func (s *Server) listConflicts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, list(s.desk.Store().Conflicts()))
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}

	id := chi.URLParam(r, "id")
	o, err := s.desk.Resolve(r.Context(), id, model.ResolveAction(strings.ToUpper(string(req.Action))))
	switch {
	case errors.Is(err, orderqueue.ErrInvalidAction):
		s.writeError(w, http.StatusBadRequest, "invalid_action", err)
	case errors.Is(err, orderqueue.ErrConflictNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", err)
	case err != nil:
		s.logger.Error("resolve conflict", "conflict_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal", err)
	default:
		s.writeJSON(w, http.StatusOK, o)
	}
}

// Lifecycle

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	s.desk.OnResume()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) connection(w http.ResponseWriter, r *http.Request) {
	st := s.desk.ConnectionStats()
	s.writeJSON(w, http.StatusOK, ConnectionResponse{
		Status:            st.Status,
		ReconnectAttempts: st.ReconnectAttempts,
		Subscriptions:     st.Subscriptions,
		BatchesDelivered:  st.BatchesDelivered,
		UpdatesDelivered:  st.UpdatesDelivered,
		FramesDropped:     st.FramesDropped,
	})
}
