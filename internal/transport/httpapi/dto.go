package httpapi

import (
	"bytes"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// amount принимает сумму и числом, и строкой: 500, "500.00", "1,000.50".
type amount int64

func (a *amount) UnmarshalJSON(data []byte) error {
	raw := string(bytes.TrimSpace(data))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	minor, err := domain.ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = amount(minor)
	return nil
}

type bookResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Price      string    `json:"price"`
	PriceMinor int64     `json:"priceMinor"`
	Stock      int32     `json:"stock"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toBookResponse(b domain.Book) bookResponse {
	return bookResponse{
		ID:         b.ID,
		Title:      b.Title,
		Author:     b.Author,
		Price:      domain.FormatAmount(b.PriceMinor),
		PriceMinor: b.PriceMinor,
		Stock:      b.Stock,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

type cartItemResponse struct {
	BookID     string `json:"bookId"`
	Quantity   int32  `json:"quantity"`
	Price      string `json:"price"`
	PriceMinor int64  `json:"priceMinor"`
}

type cartResponse struct {
	UserID      string             `json:"userId"`
	Items       []cartItemResponse `json:"items"`
	TotalAmount string             `json:"totalAmount"`
	TotalMinor  int64              `json:"totalMinor"`
}

func toCartResponse(c domain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, cartItemResponse{
			BookID:     item.BookID,
			Quantity:   item.Qty,
			Price:      domain.FormatAmount(item.PriceMinor),
			PriceMinor: item.PriceMinor,
		})
	}
	return cartResponse{
		UserID:      c.UserID,
		Items:       items,
		TotalAmount: domain.FormatAmount(c.TotalMinor),
		TotalMinor:  c.TotalMinor,
	}
}

type orderItemResponse struct {
	ID         string `json:"id"`
	BookID     string `json:"bookId"`
	Quantity   int32  `json:"quantity"`
	Price      string `json:"price"`
	PriceMinor int64  `json:"priceMinor"`
}

type orderResponse struct {
	ID           string              `json:"id"`
	UserID       string              `json:"userId"`
	Status       domain.OrderStatus  `json:"status"`
	PaymentRefID string              `json:"paymentRefId,omitempty"`
	TotalAmount  string              `json:"totalAmount"`
	TotalMinor   int64               `json:"totalMinor"`
	Items        []orderItemResponse `json:"items"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:         item.ID,
			BookID:     item.BookID,
			Quantity:   item.Qty,
			Price:      domain.FormatAmount(item.PriceMinor),
			PriceMinor: item.PriceMinor,
		})
	}
	return orderResponse{
		ID:           o.ID,
		UserID:       o.UserID,
		Status:       o.Status,
		PaymentRefID: o.PaymentRefID,
		TotalAmount:  domain.FormatAmount(o.TotalMinor),
		TotalMinor:   o.TotalMinor,
		Items:        items,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Source   string    `json:"source,omitempty"`
	Occurred time.Time `json:"occurred"`
}
