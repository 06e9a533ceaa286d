package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getPrimaryRecording(c *gin.Context) {
	rec, err := s.recordings.GetPrimaryRecording(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) listUtterances(c *gin.Context) {
	utterances, err := s.recordings.ListUtterances(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, utterances)
}
