package server

import (
	"net/http"

	estimatordomain "github.com/geocubed/cubehub/internal/estimator/domain"
	ledgerdomain "github.com/geocubed/cubehub/internal/ledger/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetPunits(c *gin.Context) {
	user := c.Param("user")
	if user != callerUser(c) && !callerHasScope(c, ScopeManagePunits) {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	includeHistory := c.Query("history") == "true"
	record, err := s.ledgerSvc.Get(c.Request.Context(), user, includeHistory)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) UpdatePunits(c *gin.Context) {
	if !callerHasScope(c, ScopeManagePunits) {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req ledgerdomain.PunitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, estimatordomain.NewInvalidKeyError("body"))
		return
	}

	user := c.Param("user")
	ctx := c.Request.Context()

	var err error
	switch op := c.DefaultQuery("op", ledgerdomain.OpAdd); op {
	case ledgerdomain.OpAdd:
		err = s.ledgerSvc.Add(ctx, user, req)
	case ledgerdomain.OpSubtract:
		err = s.ledgerSvc.Subtract(ctx, user, req)
	case ledgerdomain.OpOverride:
		err = s.ledgerSvc.Override(ctx, user, req)
	default:
		AbortWithError(c, estimatordomain.NewInvalidKeyError("op"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record, err := s.ledgerSvc.Get(ctx, user, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) DeletePunits(c *gin.Context) {
	if !callerHasScope(c, ScopeManagePunits) {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.ledgerSvc.Delete(c.Request.Context(), c.Param("user")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
