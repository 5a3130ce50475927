package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/config"
	"taskhub/internal/domain/user"
	"taskhub/internal/security"
)

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id int64) (user.Public, error)
}

type UserWriter interface {
	Create(ctx context.Context, name, email, passwordHash string) (user.User, error)
}

type TokenIssuer interface {
	GenerateToken(userID int64) (string, error)
}

type AuthHandler struct {
	users      UserReader
	userWriter UserWriter
	jwt        TokenIssuer
}

func NewAuthHandler(users UserReader, userWriter UserWriter, jwt TokenIssuer) *AuthHandler {
	return &AuthHandler{
		users:      users,
		userWriter: userWriter,
		jwt:        jwt,
	}
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// binding ran on the raw value; re-check the name after trimming
	name := strings.TrimSpace(req.Name)

	if len(name) < 2 {
		RespondValidation(ctx, "Invalid request body", gin.H{
			"fields": []FieldError{
				{Field: "name", Rule: "min", Param: "2", Message: "must be at least 2"},
			},
		})
		return
	}

	email := strings.TrimSpace(req.Email)

	cctx, cancel := config.WithTimeout(5 * time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.userWriter.Create(cctx, name, email, hash)

	if err != nil {
		if err == user.ErrEmailTaken {
			RespondBadRequest(ctx, "email_taken", "User with this email already exists")
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	token, err := h.jwt.GenerateToken(u.ID)

	if err != nil {
		RespondInternal(ctx, "Could not generate token")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  u.Public(),
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, strings.TrimSpace(req.Email))
	if err != nil {
		// unknown email answers exactly like a wrong password
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect")
		return
	}

	token, err := h.jwt.GenerateToken(foundUser.ID)

	if err != nil {
		RespondInternal(ctx, "Could not generate token")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  foundUser.Public(),
	})
}

// Me resolves the identity attached by the auth middleware back into the
// public user record.
func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := userIDOrAbort(ctx)

	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)

	if err != nil {
		if err == user.ErrNotFound {
			RespondUnAuthorized(ctx, "invalid_token", "Unknown user")
			return
		}

		RespondInternal(ctx, "Could not fetch user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}
