// Package httpapi serves the course catalog over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"catalog/internal/auth"
	"catalog/internal/catalog"
	"catalog/internal/metrics"
)

// Catalog is the slice of catalog.Service the handlers use.
type Catalog interface {
	ListCourses(ctx context.Context, f catalog.CourseFilter) ([]catalog.CourseSummary, error)
	GetCourse(ctx context.Context, id int64) (catalog.CourseDetail, error)
	ListHandouts(ctx context.Context, courseID int64, languageCode string) ([]catalog.HandoutView, error)
	ListAdditionalMaterials(ctx context.Context, courseID int64) ([]string, error)
	ListLevels(ctx context.Context) ([]string, error)
	ListFormats(ctx context.Context) ([]string, error)
	ListSeries(ctx context.Context) ([]string, error)
	ListLanguages(ctx context.Context) (map[string]string, error)
	Register(ctx context.Context, username, password string) (catalog.User, error)
	Authenticate(ctx context.Context, username, password string) (catalog.User, error)
	GetUser(ctx context.Context, id int64) (catalog.User, error)
}

type Deps struct {
	Catalog Catalog
	Tokens  *auth.TokenManager
	Log     *zap.Logger
	Metrics metrics.Backend // nil discards

	// Limiter is optional; nil disables rate limiting.
	Limiter     *RateLimiter
	CORSOrigins []string
}

type handler struct {
	svc    Catalog
	tokens *auth.TokenManager
	log    *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{svc: d.Catalog, tokens: d.Tokens, log: log}

	r := gin.New()
	r.Use(RequestID(), AccessLog(log, d.Metrics), gin.Recovery())

	cc := cors.DefaultConfig()
	if len(d.CORSOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = d.CORSOrigins
		cc.AllowCredentials = true
	}
	cc.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", HeaderRequestID}
	cc.ExposeHeaders = []string{HeaderRequestID}
	cc.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cc.MaxAge = 12 * time.Hour
	r.Use(cors.New(cc))

	r.NoRoute(func(c *gin.Context) { abort(c, http.StatusNotFound, "Not Found") })

	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "Server running."}) })
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("")
	if d.Limiter != nil {
		api.Use(d.Limiter.Limit())
	}
	{
		api.GET("/courses", h.listCourses)
		api.GET("/courses/:id", h.getCourse)
		api.GET("/courses/:id/handouts", h.listHandouts)
		api.GET("/courses/:id/additional-materials", h.listMaterials)
		api.GET("/levels", h.listLevels)
		api.GET("/formats", h.listFormats)
		api.GET("/series", h.listSeries)
		api.GET("/languages", h.listLanguages)

		api.POST("/token", h.token)
		api.POST("/users", h.signup)
		api.GET("/users/me", RequireUser(d.Tokens), h.me)
	}
	return r
}

// fail maps service errors to statuses. Unknown errors are logged and
// reported as 500.
func (h *handler) fail(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		abort(c, http.StatusNotFound, notFound)
	case errors.Is(err, catalog.ErrConflict):
		abort(c, http.StatusConflict, "Username already registered")
	case errors.Is(err, catalog.ErrInvalidInput):
		abort(c, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err))
		abort(c, http.StatusInternalServerError, "Internal server error")
	}
}

func courseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		abort(c, http.StatusBadRequest, "invalid course id")
		return 0, false
	}
	return id, true
}

func (h *handler) listCourses(c *gin.Context) {
	f := catalog.CourseFilter{
		Level:  c.Query("level"),
		Format: c.Query("format"),
		Series: c.Query("series"),
		Search: c.Query("search"),
	}
	if len(f.Search) > 200 {
		abort(c, http.StatusBadRequest, "search is too long")
		return
	}
	courses, err := h.svc.ListCourses(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, courses)
}

func (h *handler) getCourse(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	d, err := h.svc.GetCourse(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Course not found")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) listHandouts(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	hs, err := h.svc.ListHandouts(c.Request.Context(), id, c.Query("language"))
	if err != nil {
		h.fail(c, err, "Course not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"handouts": hs})
}

func (h *handler) listMaterials(c *gin.Context) {
	id, ok := courseID(c)
	if !ok {
		return
	}
	ms, err := h.svc.ListAdditionalMaterials(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Course not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"additional_materials": ms})
}

func (h *handler) listLevels(c *gin.Context) {
	h.lookup(c, "levels", h.svc.ListLevels)
}

func (h *handler) listFormats(c *gin.Context) {
	h.lookup(c, "formats", h.svc.ListFormats)
}

func (h *handler) listSeries(c *gin.Context) {
	h.lookup(c, "series", h.svc.ListSeries)
}

func (h *handler) listLanguages(c *gin.Context) {
	langs, err := h.svc.ListLanguages(c.Request.Context())
	if err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"languages": langs})
}

func (h *handler) lookup(c *gin.Context, key string, list func(context.Context) ([]string, error)) {
	vals, err := list(c.Request.Context())
	if err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{key: vals})
}

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

func viewOf(u catalog.User) userView {
	return userView{ID: u.ID, Username: u.Username, IsActive: u.IsActive}
}

// token exchanges form credentials for a bearer token.
func (h *handler) token(c *gin.Context) {
	u, err := h.svc.Authenticate(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	switch {
	case errors.Is(err, catalog.ErrInvalidCredentials):
		unauthorized(c, "Incorrect username or password")
		return
	case errors.Is(err, catalog.ErrInactiveUser):
		abort(c, http.StatusBadRequest, "Inactive user")
		return
	case err != nil:
		h.fail(c, err, "")
		return
	}

	tok, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok, "token_type": "bearer"})
}

type signupRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

func (h *handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "username and a password of at least 8 characters are required")
		return
	}
	u, err := h.svc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, viewOf(u))
}

func (h *handler) me(c *gin.Context) {
	u, err := h.svc.GetUser(c.Request.Context(), c.GetInt64(ctxUserID))
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		unauthorized(c, "Could not validate credentials")
		return
	case errors.Is(err, catalog.ErrInactiveUser):
		abort(c, http.StatusBadRequest, "Inactive user")
		return
	case err != nil:
		h.fail(c, err, "")
		return
	}
	c.JSON(http.StatusOK, viewOf(u))
}
