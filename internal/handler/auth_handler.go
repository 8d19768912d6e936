package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register 注册新账号并签发访问令牌
func (a *API) Register(c *gin.Context) {
	var payload credentialsPayload
	if !bindJSON(c, &payload, "invalid registration payload") {
		return
	}

	token, err := a.auth.Register(payload.Email, payload.Password)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": token})
}

// Login 校验邮箱密码并签发访问令牌
func (a *API) Login(c *gin.Context) {
	var payload credentialsPayload
	if !bindJSON(c, &payload, "invalid login payload") {
		return
	}

	token, err := a.auth.Login(payload.Email, payload.Password)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
