package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/bookstore/internal/service/payment"
)

// initiateResponse отдаёт paymentUrl, params и order на верхнем уровне, рядом с success.
type initiateResponse struct {
	Success bool `json:"success"`
	payment.PaymentRequest
}

func (s *Server) initiatePayment(c *gin.Context) {
	req, err := s.svc.Payments.InitiatePayment(c.Request.Context(), c.Param("orderId"), userID(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, initiateResponse{Success: true, PaymentRequest: req})
}

// verifyPayment обслуживает success_url шлюза. Публичный: подлинность проверяется подписью.
func (s *Server) verifyPayment(c *gin.Context) {
	res, err := s.svc.Payments.VerifyCallback(c.Request.Context(), c.Query("data"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if !res.Completed() {
		c.JSON(http.StatusOK, envelope{
			Success: false,
			Message: "Payment status: " + string(res.GatewayStatus),
			Data:    res,
		})
		return
	}

	msg := "Payment verified successfully"
	if res.Duplicate {
		msg = "Payment already verified"
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: msg, Data: res})
}

// paymentFailed обслуживает failure_url шлюза; заказ не меняется.
func (s *Server) paymentFailed(c *gin.Context) {
	res := s.svc.Payments.HandleFailureRedirect(c.Request.Context(), c.Request.URL.Query())
	c.JSON(http.StatusOK, envelope{Success: res.Success, Message: res.Reason})
}

func (s *Server) paymentStatus(c *gin.Context) {
	res, err := s.svc.Payments.PollStatus(c.Request.Context(), c.Param("orderId"), userID(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: "Payment status checked", Data: res})
}
