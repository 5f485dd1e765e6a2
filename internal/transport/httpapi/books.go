package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/service/catalog"
)

type createBookRequest struct {
	Title  string `json:"title" binding:"required"`
	Author string `json:"author"`
	Price  amount `json:"price"`
	Stock  int32  `json:"stock" binding:"gte=0"`
}

type updateBookRequest struct {
	Title      *string `json:"title"`
	Author     *string `json:"author"`
	Price      *amount `json:"price"`
	StockDelta *int32  `json:"stockDelta"`
}

func (s *Server) listBooks(c *gin.Context) {
	s.respondBookPage(c, c.Query("search"))
}

func (s *Server) searchBooks(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		q = c.Query("search")
	}
	s.respondBookPage(c, q)
}

func (s *Server) respondBookPage(c *gin.Context, search string) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(catalog.DefaultPageSize)))

	result, err := s.svc.Catalog.List(c.Request.Context(), search, page, limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	books := make([]bookResponse, 0, len(result.Books))
	for _, b := range result.Books {
		books = append(books, toBookResponse(b))
	}
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    books,
		Pagination: &pagination{
			Page:       result.Page,
			Limit:      result.Limit,
			Total:      result.Total,
			TotalPages: result.TotalPages(),
		},
	})
}

func (s *Server) getBook(c *gin.Context) {
	book, err := s.svc.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: toBookResponse(book)})
}

func (s *Server) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	book, err := s.svc.Catalog.Create(c.Request.Context(), domain.Book{
		Title:      req.Title,
		Author:     req.Author,
		PriceMinor: int64(req.Price),
		Stock:      req.Stock,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, envelope{Success: true, Data: toBookResponse(book)})
}

func (s *Server) updateBook(c *gin.Context) {
	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	upd := catalog.BookUpdate{
		Title:      req.Title,
		Author:     req.Author,
		StockDelta: req.StockDelta,
	}
	if req.Price != nil {
		price := int64(*req.Price)
		upd.PriceMinor = &price
	}

	book, err := s.svc.Catalog.Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: toBookResponse(book)})
}

func (s *Server) deleteBook(c *gin.Context) {
	if err := s.svc.Catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: "Book deleted successfully"})
}
