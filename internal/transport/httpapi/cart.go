package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type addCartItemRequest struct {
	BookID string `json:"bookId" binding:"required"`
	// Quantity по умолчанию 1.
	Quantity *int32 `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int32 `json:"quantity"`
}

func (s *Server) getCart(c *gin.Context) {
	cart, err := s.svc.Cart.Get(c.Request.Context(), userID(c))
	s.respondCart(c, cart, err)
}

func (s *Server) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	qty := int32(1)
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	cart, err := s.svc.Cart.AddItem(c.Request.Context(), userID(c), req.BookID, qty)
	s.respondCart(c, cart, err)
}

func (s *Server) updateCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	cart, err := s.svc.Cart.UpdateItem(c.Request.Context(), userID(c), c.Param("bookId"), req.Quantity)
	s.respondCart(c, cart, err)
}

func (s *Server) removeCartItem(c *gin.Context) {
	cart, err := s.svc.Cart.RemoveItem(c.Request.Context(), userID(c), c.Param("bookId"))
	s.respondCart(c, cart, err)
}

func (s *Server) clearCart(c *gin.Context) {
	cart, err := s.svc.Cart.Clear(c.Request.Context(), userID(c))
	s.respondCart(c, cart, err)
}

func (s *Server) respondCart(c *gin.Context, cart domain.Cart, err error) {
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: toCartResponse(cart)})
}
