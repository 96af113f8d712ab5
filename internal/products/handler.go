package products

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/valeevte/PriceWatcher/internal/storage"
)

// Trigger starts price checks outside the regular schedule.
type Trigger interface {
	CheckProduct(ctx context.Context, id int64) error
	CheckAll(ctx context.Context)
}

// ChartLocator resolves where a product's rendered chart lives.
type ChartLocator interface {
	Path(slug string) string
}

type Handler struct {
	store   storage.Store
	trigger Trigger
	charts  ChartLocator
	log     *logrus.Logger
}

func NewHandler(store storage.Store, trigger Trigger, charts ChartLocator, log *logrus.Logger) *Handler {
	return &Handler{store: store, trigger: trigger, charts: charts, log: log}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Price Watcher API is running."})
}

type createProductRequest struct {
	Name          string `json:"name" binding:"required"`
	URL           string `json:"url" binding:"required,url"`
	PriceSelector string `json:"price_selector" binding:"required"`
	NameSelector  string `json:"name_selector" binding:"required"`
	Slug          string `json:"slug"`
	Active        *bool  `json:"active"`
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = Slugify(req.Name)
	}
	if err := ValidateSlug(slug); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := storage.Product{
		Name:          req.Name,
		Slug:          slug,
		URL:           req.URL,
		PriceSelector: req.PriceSelector,
		NameSelector:  req.NameSelector,
		Active:        true,
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	if err := h.store.CreateProduct(c.Request.Context(), &p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "a product with this url or slug already exists"})
			return
		}
		h.log.WithError(err).Error("CreateProduct: insert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to insert product"})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListProducts(c *gin.Context) {
	list, err := h.store.ListProducts(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("ListProducts: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch products"})
		return
	}
	if list == nil {
		list = []storage.Product{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	p, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		h.log.WithError(err).Error("GetProduct: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch product"})
		return
	}
	c.JSON(http.StatusOK, p)
}

type updateProductRequest struct {
	Name          *string `json:"name"`
	URL           *string `json:"url"`
	PriceSelector *string `json:"price_selector"`
	NameSelector  *string `json:"name_selector"`
	Slug          *string `json:"slug"`
	Active        *bool   `json:"active"`
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()
	p, err := h.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		h.log.WithError(err).Error("UpdateProduct: fetch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch product"})
		return
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.URL != nil {
		p.URL = *req.URL
	}
	if req.PriceSelector != nil {
		p.PriceSelector = *req.PriceSelector
	}
	if req.NameSelector != nil {
		p.NameSelector = *req.NameSelector
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if req.Slug != nil {
		if err := ValidateSlug(*req.Slug); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p.Slug = *req.Slug
	}

	if err := h.store.UpdateProduct(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "a product with this url or slug already exists"})
			return
		}
		h.log.WithError(err).Error("UpdateProduct: update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update product"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteProduct(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		h.log.WithError(err).Error("DeleteProduct: delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete product"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPriceHistory returns the full series plus derived statistics. An empty
// series is an empty data array, not an error.
func (h *Handler) GetPriceHistory(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	history, err := h.store.PriceHistory(ctx, id)
	if err != nil {
		h.log.WithError(err).Error("GetPriceHistory: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch price history"})
		return
	}
	stats, err := h.store.PriceStats(ctx, id)
	if err != nil {
		h.log.WithError(err).Error("GetPriceHistory: stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
		return
	}
	if history == nil {
		history = []storage.PricePoint{}
	}
	c.JSON(http.StatusOK, gin.H{"data": history, "metadata": stats})
}

func (h *Handler) GetLatestPrice(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	latest, err := h.store.LatestPrice(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).Error("GetLatestPrice: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch latest price"})
		return
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no price data found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timestamp": latest.Timestamp, "latest_price": latest.Price})
}

func (h *Handler) GetStats(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	stats, err := h.store.PriceStats(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).Error("GetStats: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetChart serves the last rendered chart image for a product.
func (h *Handler) GetChart(c *gin.Context) {
	id, ok := h.productID(c)
	if !ok {
		return
	}
	p, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		h.log.WithError(err).Error("GetChart: fetch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch product"})
		return
	}
	path := h.charts.Path(p.Slug)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chart not found"})
		return
	}
	c.File(path)
}

type triggerRequest struct {
	ProductID *int64 `json:"product_id"`
}

// TriggerCheck runs a price check on demand: one product when an id is
// given, otherwise a full pass over the active set.
func (h *Handler) TriggerCheck(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()
	if req.ProductID != nil {
		if err := h.trigger.CheckProduct(ctx, *req.ProductID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "product not found or not active"})
				return
			}
			h.log.WithError(err).Error("TriggerCheck: single product check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger check"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Manual price check triggered for product " + strconv.FormatInt(*req.ProductID, 10) + "."})
		return
	}

	h.trigger.CheckAll(ctx)
	c.JSON(http.StatusOK, gin.H{"message": "Manual price check triggered for all active products."})
}

func (h *Handler) productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
