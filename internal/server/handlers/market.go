package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"refcache/internal/entity"
	"refcache/internal/shared/errors"
	"refcache/internal/shared/response"
)

type PriceLookup interface {
	Get(typeID int64) (entity.MarketPrice, bool)
}

type MarketHandler struct {
	prices PriceLookup
}

func NewMarketHandler(prices PriceLookup) *MarketHandler {
	return &MarketHandler{prices: prices}
}

func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "market_price")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	typeID, err := strconv.ParseInt(r.PathValue("typeID"), 10, 64)
	if err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid type ID", err))
		return
	}

	price, ok := h.prices.Get(typeID)
	if !ok {
		response.Error(w, r, logger, errors.NotFoundf("no market price cached for type %d", typeID))
		return
	}

	response.Success(w, http.StatusOK, price)
}
