package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alumni-portal-api/internal/middleware"
	"github.com/noah-isme/alumni-portal-api/internal/models"
)

func currentUser(c *gin.Context) *models.User {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return user
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}
