package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sarthi/reflection"
)

type startRequest struct {
	UserID string `json:"user_id"`
}

// POST /api/reflection/start
func StartReflection(c *gin.Context) {
	svc, ok := serviceInstance(c)
	if !ok {
		return
	}

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		RespondError(c, "user_id is required", http.StatusBadRequest)
		return
	}

	res, err := svc.Start(c.Request.Context(), req.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, res)
}

// category accepts "category" (number or name), "category_no" or "category_name".
type categoryRequest struct {
	ReflectionID string          `json:"reflection_id"`
	Category     json.RawMessage `json:"category"`
	CategoryNo   json.RawMessage `json:"category_no"`
	CategoryName json.RawMessage `json:"category_name"`
}

// raw returns the first category field carrying a value. null counts as absent.
func (r categoryRequest) raw() json.RawMessage {
	for _, v := range []json.RawMessage{r.Category, r.CategoryNo, r.CategoryName} {
		v = bytes.TrimSpace(v)
		if len(v) > 0 && !bytes.Equal(v, []byte("null")) {
			return v
		}
	}
	return nil
}

// POST /api/reflection/category
func SetReflectionCategory(c *gin.Context) {
	svc, ok := serviceInstance(c)
	if !ok {
		return
	}

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, "invalid request body", http.StatusBadRequest)
		return
	}

	ref, err := reflection.ParseCategoryRef(req.raw())
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	res, err := svc.SetCategory(c.Request.Context(), req.ReflectionID, ref)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, res)
}

type advanceRequest struct {
	ReflectionID string `json:"reflection_id"`
	UserInput    string `json:"user_input"`
}

// POST /api/reflection/next
func AdvanceReflection(c *gin.Context) {
	svc, ok := serviceInstance(c)
	if !ok {
		return
	}

	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := svc.Advance(c.Request.Context(), req.ReflectionID, req.UserInput)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, res)
}

// GET /api/reflection/:id
func GetReflection(c *gin.Context) {
	id, ok := ParamUUID(c, "id")
	if !ok {
		return
	}
	svc, ok := serviceInstance(c)
	if !ok {
		return
	}

	snap, err := svc.Status(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, snap)
}

// GET /api/reflection/:id/messages
func GetReflectionMessages(c *gin.Context) {
	id, ok := ParamUUID(c, "id")
	if !ok {
		return
	}
	svc, ok := serviceInstance(c)
	if !ok {
		return
	}

	msgs, err := svc.Messages(c.Request.Context(), id)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"messages": msgs})
}

// GET /api/categories
func GetCategories(c *gin.Context) {
	svc, ok := serviceInstance(c)
	if !ok {
		return
	}
	RespondSuccess(c, gin.H{"categories": svc.CategoryOptions()})
}
