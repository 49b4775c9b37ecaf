package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	mwauth "github.com/campusclub/shop/internal/middleware/auth"
	"github.com/campusclub/shop/internal/models"
)

type CartHandler struct {
	DB *gorm.DB
}

// currentUserID resolves the numeric user id set by RequireAuth. The
// synthetic admin identity has no cart.
func currentUserID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(mwauth.UserID(c), 10, 64)
	if err != nil {
		return 0, errors.New("no user account for this identity")
	}
	return uint(id), nil
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return denied(c, http.StatusForbidden, err.Error())
	}

	var items []models.CartItem
	if err := h.DB.Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return denied(c, http.StatusInternalServerError, "could not load cart")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "items": items})
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return denied(c, http.StatusForbidden, err.Error())
	}

	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return denied(c, http.StatusBadRequest, "invalid body")
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	var product models.Product
	if err := h.DB.First(&product, req.ProductID).Error; err != nil {
		return denied(c, http.StatusNotFound, "product not found")
	}

	var item models.CartItem
	err = h.DB.Where("user_id = ? AND product_id = ?", userID, req.ProductID).First(&item).Error
	switch {
	case err == nil:
		item.Quantity += req.Quantity
		if err := h.DB.Save(&item).Error; err != nil {
			return denied(c, http.StatusInternalServerError, "could not update cart")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		item = models.CartItem{
			UserID:    userID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		}
		if err := h.DB.Create(&item).Error; err != nil {
			return denied(c, http.StatusInternalServerError, "could not update cart")
		}
	default:
		return denied(c, http.StatusInternalServerError, "could not update cart")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "item": item})
}

func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return denied(c, http.StatusForbidden, err.Error())
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return denied(c, http.StatusBadRequest, "invalid cart item id")
	}

	if err := h.DB.
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.CartItem{}).Error; err != nil {
		return denied(c, http.StatusInternalServerError, "could not remove item")
	}

	return c.NoContent(http.StatusNoContent)
}
