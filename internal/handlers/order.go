package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/campusclub/shop/internal/models"
)

type OrderHandler struct {
	DB *gorm.DB
}

var orderStatuses = map[string]bool{
	"pending":   true,
	"paid":      true,
	"shipped":   true,
	"completed": true,
	"cancelled": true,
}

// MakeOrder turns the cart into an order inside one transaction; the
// cart is emptied only if every step succeeds.
func (h *OrderHandler) MakeOrder(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return denied(c, http.StatusForbidden, err.Error())
	}

	var order models.Order
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var items []models.CartItem
		if err := tx.Where("user_id = ?", userID).Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return gorm.ErrRecordNotFound
		}

		var total float64
		for _, item := range items {
			var product models.Product
			if err := tx.First(&product, item.ProductID).Error; err != nil {
				return err
			}
			total += product.Price * float64(item.Quantity)
		}

		order = models.Order{
			UserID:    userID,
			CreatedAt: time.Now().Unix(),
			Total:     total,
			Status:    "pending",
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for _, item := range items {
			orderItem := models.OrderItem{
				OrderID:   order.ID,
				UserID:    userID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			}
			if err := tx.Create(&orderItem).Error; err != nil {
				return err
			}
		}

		return tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return denied(c, http.StatusBadRequest, "cart is empty")
		}
		return denied(c, http.StatusInternalServerError, "could not create order")
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "order": order})
}

func (h *OrderHandler) GetOrders(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return denied(c, http.StatusForbidden, err.Error())
	}

	var orders []models.Order
	if err := h.DB.Where("user_id = ?", userID).Order("id DESC").Find(&orders).Error; err != nil {
		return denied(c, http.StatusInternalServerError, "could not load orders")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "orders": orders})
}

func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return denied(c, http.StatusBadRequest, "invalid order id")
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || !orderStatuses[req.Status] {
		return denied(c, http.StatusBadRequest, "invalid status")
	}

	var order models.Order
	if err := h.DB.First(&order, id).Error; err != nil {
		return denied(c, http.StatusNotFound, "order not found")
	}

	order.Status = req.Status
	if err := h.DB.Save(&order).Error; err != nil {
		return denied(c, http.StatusInternalServerError, "could not update order")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "order": order})
}
