package server

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatterbox/pkg/errors"
	"chatterbox/pkg/middleware"
	"chatterbox/pkg/storage"
)

// setupRouter builds the gin engine with the REST API, media serving and
// the websocket endpoint.
func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())
	r.Use(s.requestLogger())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Chat Server is running")
	})
	r.GET("/healthz", s.healthHandler)

	api := r.Group("/api")
	{
		api.POST("/register", s.registerHandler)
		api.GET("/users", s.listUsersHandler)
		api.POST("/groups", s.createGroupHandler)
		api.GET("/groups/:email", s.userGroupsHandler)
		api.POST("/upload", s.uploadHandler)
		api.GET("/uploads", s.listUploadsHandler)
		api.GET("/uploads/:id", s.getUploadHandler)
	}

	r.Static("/uploads", s.cfg.Uploads.Dir)
	r.GET("/ws", s.handleWebSocket)

	return r
}

// requestLogger logs each HTTP request with timing information
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"request_id", middleware.GetRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetHealth(s.registry.OnlineCount(), s.registry.KnownCount()))
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// registerHandler creates an identity. Registration is how identities
// come to exist before their first websocket connect.
func (s *Server) registerHandler(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username and email are required"})
		return
	}

	if created := s.registry.Register(req.Username, req.Email); !created {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"username": req.Username, "email": req.Email})
}

// listUsersHandler returns every known identity with presence status
func (s *Server) listUsersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Snapshot())
}

type createGroupRequest struct {
	Name    string   `json:"name"`
	Creator string   `json:"creator"`
	Members []string `json:"members"`
}

func (s *Server) createGroupHandler(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Creator == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "name and creator are required"})
		return
	}

	g := s.groups.Create(req.Name, req.Creator, req.Members)
	s.log.Info("group created", "id", g.ID, "name", g.Name, "members", len(g.Members))
	c.JSON(http.StatusCreated, g)
}

func (s *Server) userGroupsHandler(c *gin.Context) {
	email := c.Param("email")
	if _, ok := s.registry.Get(email); !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	c.JSON(http.StatusOK, s.groups.GroupsOf(email))
}

// uploadHandler stores a media file and returns the URL a message can
// reference it by. The upload index keeps the record; the coordination
// core never touches file contents.
func (s *Server) uploadHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes())

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file uploaded"})
		return
	}

	id := uuid.NewString()
	storedName := id + "-" + filepath.Base(file.Filename)
	dst := filepath.Join(s.cfg.Uploads.Dir, storedName)

	if err := c.SaveUploadedFile(file, dst); err != nil {
		s.log.Error("upload save failed", "file", file.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to store file"})
		return
	}

	mimeType := file.Header.Get("Content-Type")
	if s.uploads != nil {
		err := s.uploads.SaveUpload(&storage.Upload{
			ID:         id,
			FileName:   file.Filename,
			StoredName: storedName,
			Path:       "/uploads/" + storedName,
			MimeType:   mimeType,
			Size:       file.Size,
			Uploader:   c.PostForm("uploader"),
			CreatedAt:  time.Now(),
		})
		if err != nil {
			s.log.Warn("upload index write failed", "id", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"filename": storedName,
		"path":     "/uploads/" + storedName,
		"type":     mimeType,
	})
}

// listUploadsHandler returns the most recent upload records
func (s *Server) listUploadsHandler(c *gin.Context) {
	if s.uploads == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Upload index unavailable"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	uploads, err := s.uploads.ListUploads(limit)
	if err != nil {
		s.log.Error("upload index read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to list uploads"})
		return
	}
	if uploads == nil {
		uploads = []*storage.Upload{}
	}
	c.JSON(http.StatusOK, uploads)
}

func (s *Server) getUploadHandler(c *gin.Context) {
	if s.uploads == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Upload index unavailable"})
		return
	}

	u, err := s.uploads.GetUpload(c.Param("id"))
	if err == errors.ErrUploadNotFound {
		c.JSON(http.StatusNotFound, gin.H{"message": "Upload not found"})
		return
	}
	if err != nil {
		s.log.Error("upload index read failed", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to read upload"})
		return
	}
	c.JSON(http.StatusOK, u)
}
