package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/errs"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/service"
)

// OperatorHeader carries the operator identity on lock and reply requests.
const OperatorHeader = "X-Operator-ID"

// TicketOperator is the slice of the ticket service the operator API needs.
type TicketOperator interface {
	Lock(ctx context.Context, code, operatorID string) (*service.LockResult, error)
	Reply(ctx context.Context, code, operatorID, text string) (*model.Ticket, error)
	ListOpen(ctx context.Context) ([]model.Ticket, error)
	GetByCode(ctx context.Context, code string) (*model.Ticket, error)
}

type TicketHandler struct {
	svc    TicketOperator
	logger *slog.Logger
}

func NewTicketHandler(svc TicketOperator, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{svc: svc, logger: logger}
}

type ticketResponse struct {
	Code        string `json:"code"`
	CreatedAt   string `json:"created_at"`
	Alias       string `json:"alias"`
	Age         int    `json:"age"`
	Zone        string `json:"zone"`
	Question    string `json:"question"`
	Status      string `json:"status"`
	LockedBy    string `json:"locked_by,omitempty"`
	Reply       string `json:"reply,omitempty"`
	RequesterID string `json:"requester_id"`
}

func toResponse(t model.Ticket) ticketResponse {
	return ticketResponse{
		Code:        t.Code,
		CreatedAt:   t.CreatedAt,
		Alias:       t.Alias,
		Age:         t.Age,
		Zone:        t.Zone,
		Question:    t.Question,
		Status:      string(t.Status),
		LockedBy:    t.LockedBy,
		Reply:       t.Reply,
		RequesterID: t.RequesterID,
	}
}

// List returns PENDING tickets, newest first.
func (h *TicketHandler) List(c *gin.Context) {
	items, err := h.svc.ListOpen(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]ticketResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": out,
		"total":   len(out),
	})
}

func (h *TicketHandler) Get(c *gin.Context) {
	t, err := h.svc.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*t))
}

func (h *TicketHandler) Lock(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	res, err := h.svc.Lock(c.Request.Context(), c.Param("code"), op)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket":        toResponse(res.Ticket),
		"already_owned": res.AlreadyOwned,
	})
}

type replyRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *TicketHandler) Reply(c *gin.Context) {
	op, ok := operatorID(c)
	if !ok {
		return
	}
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	t, err := h.svc.Reply(c.Request.Context(), c.Param("code"), op, req.Text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*t))
}

func operatorID(c *gin.Context) (string, bool) {
	op := strings.TrimSpace(c.GetHeader(OperatorHeader))
	if op == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + OperatorHeader + " header"})
		return "", false
	}
	return op, true
}

// writeError maps the error to a status. Client errors echo the message; server-side
// failures get a fixed text and the detail goes to the log.
func (h *TicketHandler) writeError(c *gin.Context, err error) {
	var (
		status int
		msg    string
	)
	switch {
	case errors.Is(err, errs.ErrTicketNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errs.IsLockViolation(err):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, errs.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrReplyNotRecorded):
		status, msg = http.StatusInternalServerError, errs.ErrReplyNotRecorded.Error()
	case errors.Is(err, errs.ErrDeliveryFailed):
		status, msg = http.StatusBadGateway, errs.ErrDeliveryFailed.Error()
	case errors.Is(err, errs.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, errs.ErrStoreUnavailable.Error()
	default:
		status, msg = http.StatusInternalServerError, "internal error"
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("operator api request failed",
			"method", c.Request.Method, "path", c.FullPath(), "code", c.Param("code"), "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
