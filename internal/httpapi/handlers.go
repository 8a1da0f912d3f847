package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"btcFootprint/internal/app"
	"btcFootprint/internal/domain"
	"btcFootprint/internal/ports"
)

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

// GetData serves the footprint series.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	req, err := parseFootprintRequest(r.URL.Query(), h.svc.DefaultRequest())
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	fp, err := h.svc.Footprint(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ports.ErrInvalidParameter) {
			status = http.StatusBadRequest
		}
		h.writeError(w, r, status, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newFootprintView(fp))
}

// GetOrderBook serves the cached depth snapshot. An upstream failure yields an
// empty book so the dashboard keeps polling.
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.svc.OrderBook(r.Context())
	if err != nil {
		h.logger.Warn(r.Context(), "Serving empty order book", map[string]interface{}{
			"requestId": RequestID(r.Context()),
			"error":     err.Error(),
		})
	}
	if book == nil {
		book = &domain.OrderBook{}
	}
	h.writeJSON(w, r, http.StatusOK, newOrderBookView(book))
}

// GetRelevantOrders serves large resting orders near the current price.
func (h *Handler) GetRelevantOrders(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RelevantOrders(r.Context(), r.URL.Query().Get("chart_tf"))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ports.ErrInvalidParameter) {
			status = http.StatusBadRequest
		}
		h.writeError(w, r, status, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newRelevantOrdersView(result))
}

// parseFootprintRequest overlays the query parameters on the defaults.
// Only syntax is checked here; the service validates ranges.
func parseFootprintRequest(q url.Values, req app.FootprintRequest) (app.FootprintRequest, error) {
	if v := q.Get("interval"); v != "" {
		req.Interval = v
	}
	if v := q.Get("step"); v != "" {
		step, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("step %q is not a number: %w", v, ports.ErrInvalidParameter)
		}
		req.Step = step
	}
	if v := q.Get("update_last"); v != "" {
		updateLast, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("update_last %q is not a boolean: %w", v, ports.ErrInvalidParameter)
		}
		req.UpdateLast = updateLast
	}
	if v := q.Get("filter_mode"); v != "" {
		req.Filter.Mode = domain.FilterMode(v)
	}
	if v := q.Get("filter_percentile"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("filter_percentile %q is not an integer: %w", v, ports.ErrInvalidParameter)
		}
		req.Filter.Percentile = p
	}
	if v := q.Get("filter_min_qty"); v != "" {
		minQty, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("filter_min_qty %q is not a number: %w", v, ports.ErrInvalidParameter)
		}
		req.Filter.MinQtyPercent = minQty
	}
	if v := q.Get("filter_top_n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("filter_top_n %q is not an integer: %w", v, ports.ErrInvalidParameter)
		}
		req.Filter.TopN = n
	}
	return req, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error(r.Context(), err, "Failed to encode response", map[string]interface{}{
			"requestId": RequestID(r.Context()),
			"path":      r.URL.Path,
		})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), err, "Request failed", map[string]interface{}{
			"requestId": RequestID(r.Context()),
			"path":      r.URL.Path,
			"status":    status,
		})
	}
	h.writeJSON(w, r, status, map[string]string{"error": err.Error()})
}
