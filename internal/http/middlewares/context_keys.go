package middlewares

const (
	ctxUserIDKey = "auth.userID"

	CtxRequestID = "request_id"
)
