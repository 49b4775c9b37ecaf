package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/campusclub/shop/internal/logging"
	"github.com/campusclub/shop/internal/models"
	"github.com/campusclub/shop/internal/mykafka"
	"github.com/campusclub/shop/internal/util"
)

type ProductHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *ProductHandler) publish(c echo.Context, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["productID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Warn("kafka_publish_error", "error", err)
	}
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return denied(c, http.StatusBadRequest, "invalid product id")
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		return denied(c, http.StatusNotFound, "product not found")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "product": product})
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Product{}).Count(&total).Error; err != nil {
		return denied(c, http.StatusInternalServerError, "could not list products")
	}

	var items []models.Product
	if err := h.DB.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return denied(c, http.StatusInternalServerError, "could not list products")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    items,
		"meta": echo.Map{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		Count       uint    `json:"count"`
		ImageURL    string  `json:"image_url"`
	}
	if err := c.Bind(&req); err != nil {
		return denied(c, http.StatusBadRequest, "invalid body")
	}

	prod := models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Count:       req.Count,
		ImageURL:    req.ImageURL,
	}
	if err := h.DB.Create(&prod).Error; err != nil {
		return denied(c, http.StatusInternalServerError, "could not create product")
	}

	h.publish(c, map[string]interface{}{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "product": prod})
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return denied(c, http.StatusBadRequest, "invalid product id")
	}

	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		Count       uint    `json:"count"`
		ImageURL    string  `json:"image_url"`
	}
	if err := c.Bind(&req); err != nil {
		return denied(c, http.StatusBadRequest, "invalid body")
	}

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		return denied(c, http.StatusNotFound, "product not found")
	}

	prod.Name = req.Name
	prod.Description = req.Description
	prod.Price = req.Price
	prod.Count = req.Count
	prod.ImageURL = req.ImageURL

	if err := h.DB.Save(&prod).Error; err != nil {
		return denied(c, http.StatusInternalServerError, "could not update product")
	}

	h.publish(c, map[string]interface{}{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusOK, echo.Map{"success": true, "product": prod})
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return denied(c, http.StatusBadRequest, "invalid product id")
	}
	if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
		return denied(c, http.StatusInternalServerError, "could not delete product")
	}

	h.publish(c, map[string]interface{}{
		"type":      "product_deleted",
		"productID": id,
	})

	return c.NoContent(http.StatusNoContent)
}
