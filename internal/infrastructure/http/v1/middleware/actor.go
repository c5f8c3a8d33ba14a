package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"orvit/internal/core/apperror"
	appctx "orvit/internal/core/context"
)

// Identity headers set by the ERP gateway after authenticating the session.
const (
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"
	HeaderUserName  = "X-User-Name"
)

// Actor puts the calling company and user into the request context.
// A missing or malformed company id rejects the request; a missing user id
// means the system user.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID, err := strconv.ParseInt(c.GetHeader(HeaderCompanyID), 10, 64)
		if err != nil || companyID <= 0 {
			_ = c.Error(apperror.NewUnauthorized("missing or invalid " + HeaderCompanyID))
			c.Abort()
			return
		}

		actor := &appctx.Actor{CompanyID: companyID, UserName: c.GetHeader(HeaderUserName)}
		if raw := c.GetHeader(HeaderUserID); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID < 0 {
				_ = c.Error(apperror.NewValidation("invalid " + HeaderUserID))
				c.Abort()
				return
			}
			actor.UserID = userID
		}

		c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), actor))
		c.Set("company_id", companyID)
		c.Next()
	}
}
