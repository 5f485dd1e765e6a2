package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) createOrder(c *gin.Context) {
	order, err := s.svc.Orders.CreateFromCart(c.Request.Context(), userID(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, envelope{
		Success: true,
		Message: "Order created",
		Data:    toOrderResponse(order),
	})
}

func (s *Server) listOrders(c *gin.Context) {
	orders, err := s.svc.Orders.List(c.Request.Context(), userID(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	data := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		data = append(data, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.svc.Orders.Get(c.Request.Context(), c.Param("orderId"), userID(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: toOrderResponse(order)})
}

func (s *Server) orderTimeline(c *gin.Context) {
	events, err := s.svc.Orders.Timeline(c.Request.Context(), c.Param("orderId"), userID(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	data := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		data = append(data, timelineEventResponse{
			Type:     e.Type,
			Reason:   e.Reason,
			Source:   e.Source,
			Occurred: e.Occurred,
		})
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}
