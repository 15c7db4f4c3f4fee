package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// InternalResumeLatex 供内部服务（例如排版流水线）按用户拉取简历 .tex，
// 由 InternalSecretMiddleware 保护，不经过用户令牌。
func (h *ResumeHandler) InternalResumeLatex(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		BadRequest(c, "invalid user id")
		return
	}
	resumeID, err := parseResumeID(c.Param("id"))
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	h.writeLatex(c, uint(userID), resumeID)
}
