package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"token_auth_service/internal/common"
	"token_auth_service/internal/service"
	"token_auth_service/internal/validation"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	serviceLayer service.Service
	log          *slog.Logger
	extractToken TokenExtractor
}

type errorResponse struct {
	Message string                  `json:"message"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func newErrorResponse(c *gin.Context, statusCode int, errMessage string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{Message: errMessage})
}

func NewHandler(srvc service.Service, lgr *slog.Logger, extract TokenExtractor) *Handler {
	if extract == nil {
		extract = BearerToken
	}
	return &Handler{
		serviceLayer: srvc,
		log:          lgr,
		extractToken: extract,
	}
}

func (h *Handler) InitRoutes(router *gin.Engine) {
	auth := router.Group("/api/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshTokens)
		auth.POST("/validate", h.ValidateToken)
		auth.GET("/validate", h.ValidateUserExists)

		protected := auth.Group("")
		protected.Use(h.AuthMiddleware())
		protected.POST("/logout", h.Logout)
		protected.GET("/profile", h.GetProfile)
	}
}

// POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	const op = "handler.Register"

	log := h.log.With(slog.String("op", op))

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	creds, err := validation.ValidateRegister(req.Email, req.Password)
	if err != nil {
		h.fail(c, log, err)

		return
	}

	res, err := h.serviceLayer.Register(c.Request.Context(), creds.Email, creds.Password)
	if err != nil {
		h.fail(c, log, err)

		return
	}

	c.JSON(http.StatusCreated, res)
}

// POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	const op = "handler.Login"

	log := h.log.With(slog.String("op", op))

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	creds, err := validation.ValidateLogin(req.Email, req.Password)
	if err != nil {
		h.fail(c, log, err)

		return
	}

	res, err := h.serviceLayer.Login(c.Request.Context(), creds.Email, creds.Password)
	if err != nil {
		h.fail(c, log, err)

		return
	}

	c.JSON(http.StatusOK, res)
}

// POST /api/auth/refresh
func (h *Handler) RefreshTokens(c *gin.Context) {
	const op = "handler.RefreshTokens"

	log := h.log.With(slog.String("op", op))

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	token, err := validation.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		h.fail(c, log, err)

		return
	}

	res, err := h.serviceLayer.Refresh(c.Request.Context(), token)
	if err != nil {
		h.fail(c, log, err)

		return
	}

	c.JSON(http.StatusOK, res)
}

// POST /api/auth/validate
func (h *Handler) ValidateToken(c *gin.Context) {
	const op = "handler.ValidateToken"

	log := h.log.With(slog.String("op", op))

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request body")

		return
	}

	token, err := validation.ValidateToken(req.Token)
	if err != nil {
		h.fail(c, log, err)

		return
	}

	res, err := h.serviceLayer.ValidateToken(c.Request.Context(), token)
	if err != nil {
		h.fail(c, log, err)

		return
	}

	c.JSON(http.StatusOK, res)
}

// GET /api/auth/validate?userId=
func (h *Handler) ValidateUserExists(c *gin.Context) {
	const op = "handler.ValidateUserExists"

	log := h.log.With(slog.String("op", op))

	userID, err := validation.ValidateUserID(c.Query("userId"))
	if err != nil {
		h.fail(c, log, err)

		return
	}

	res, err := h.serviceLayer.ValidateUserExists(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, log, err)

		return
	}

	c.JSON(http.StatusOK, res)
}

// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	const op = "handler.Logout"

	log := h.log.With(slog.String("op", op))

	user, ok := currentUser(c)
	if !ok {
		log.Error("failed to get user from context")

		newErrorResponse(c, http.StatusUnauthorized, "Unauthorized")

		return
	}

	if err := h.serviceLayer.Logout(c.Request.Context(), user.ID); err != nil {
		h.fail(c, log, err)

		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: "Logout successful"})
}

// GET /api/auth/profile
func (h *Handler) GetProfile(c *gin.Context) {
	const op = "handler.GetProfile"

	log := h.log.With(slog.String("op", op))

	user, ok := currentUser(c)
	if !ok {
		log.Error("failed to get user from context")

		newErrorResponse(c, http.StatusUnauthorized, "Unauthorized")

		return
	}

	c.JSON(http.StatusOK, user)
}

// fail maps error kinds onto status codes. Unknown errors are logged and
// reported without detail.
func (h *Handler) fail(c *gin.Context, log *slog.Logger, err error) {
	var verrs validation.ValidationErrors

	switch {
	case errors.As(err, &verrs):
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Message: verrs.Error(), Errors: verrs})
	case errors.Is(err, common.ErrInvalidInput):
		newErrorResponse(c, http.StatusBadRequest, "invalid request")
	case errors.Is(err, common.ErrConflict):
		newErrorResponse(c, http.StatusConflict, "User already exists")
	case errors.Is(err, common.ErrUnauthenticated):
		newErrorResponse(c, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, common.ErrNotFound):
		newErrorResponse(c, http.StatusNotFound, "not found")
	default:
		log.Error("request failed", slog.Any("error", err))

		newErrorResponse(c, http.StatusInternalServerError, "internal error")
	}
}
