package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meetingbot/core/internal/services"
)

type createOrganizationRequest struct {
	Name                string             `json:"name"`
	AllowNegativeCredits bool              `json:"allow_negative_credits"`
	CreditRateOverrides  map[string]float64 `json:"credit_rate_overrides"`
	CreditsLowThreshold  float64            `json:"credits_low_threshold"`
}

func (s *Server) createOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	org, err := s.organizations.CreateOrganization(c.Request.Context(), services.CreateOrganizationRequest{
		Name:                req.Name,
		AllowNegativeCredits: req.AllowNegativeCredits,
		CreditRateOverrides:  req.CreditRateOverrides,
		CreditsLowThreshold:  req.CreditsLowThreshold,
	})
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (s *Server) getOrganization(c *gin.Context) {
	org, err := s.organizations.GetOrganization(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (s *Server) createProject(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := s.organizations.CreateProject(c.Request.Context(), services.CreateProjectRequest{
		OrganizationID: c.Param("id"),
		Name:           body.Name,
	})
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *Server) getProject(c *gin.Context) {
	project, err := s.organizations.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}
