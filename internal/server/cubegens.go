package server

import (
	"net/http"

	cubegendomain "github.com/geocubed/cubehub/internal/cubegen/domain"
	estimatordomain "github.com/geocubed/cubehub/internal/estimator/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateCubegen(c *gin.Context) {
	var desc cubegendomain.CubeDescriptor
	if err := c.ShouldBindJSON(&desc); err != nil {
		AbortWithError(c, estimatordomain.NewInvalidKeyError("body"))
		return
	}

	result, err := s.cubegenSvc.Create(c.Request.Context(), callerUser(c), callerEmail(c), callerToken(c), desc)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) ListCubegens(c *gin.Context) {
	jobs, err := s.cubegenSvc.List(c.Request.Context(), callerUser(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) GetCubegen(c *gin.Context) {
	info, err := s.cubegenSvc.Get(c.Request.Context(), callerUser(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) DeleteCubegen(c *gin.Context) {
	if err := s.cubegenSvc.Delete(c.Request.Context(), callerUser(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) DeleteCubegens(c *gin.Context) {
	if err := s.cubegenSvc.DeleteAll(c.Request.Context(), callerUser(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CubegenInfo estimates size and cost without submitting anything.
func (s *Server) CubegenInfo(c *gin.Context) {
	var desc cubegendomain.CubeDescriptor
	if err := c.ShouldBindJSON(&desc); err != nil {
		AbortWithError(c, estimatordomain.NewInvalidKeyError("body"))
		return
	}

	result, err := s.cubegenSvc.Estimate(desc)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PutCubegenCallback receives a progress event pushed by the running job.
func (s *Server) PutCubegenCallback(c *gin.Context) {
	var event cubegendomain.ProgressEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		AbortWithError(c, estimatordomain.NewInvalidKeyError("body"))
		return
	}

	err := s.callbackSvc.PutCallback(c.Request.Context(), callerUser(c), c.Param("id"), event, callerEmail(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
