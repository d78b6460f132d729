package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/config"
	"hamo/backend/internal/generation"
	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/middleware"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
	"hamo/backend/internal/service"
)

// Dependencies are the process-wide collaborators the handlers are built from.
// DB may be nil when the memory store driver is in use.
type Dependencies struct {
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Store     kvstore.Store
	Objects   service.ExportObjects
	Generator generation.Generator
	Verifier  middleware.TokenVerifier
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	db          *pgxpool.Pool
	cache       *redis.Client
	verifier    middleware.TokenVerifier
	profiles    *service.ProfileService
	registry    *service.RegistryService
	invites     *service.InvitationService
	sessions    *service.SessionService
	transcripts *service.TranscriptService
	chat        *service.ChatService
	exports     *service.ExportService
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Dependencies) HandlerSet {
	profileRepo := repository.NewProfileRepository(deps.Store)
	avatarRepo := repository.NewAvatarRepository(deps.Store)
	clientRepo := repository.NewClientRepository(deps.Store)
	inviteRepo := repository.NewInvitationRepository(deps.Store)
	sessionRepo := repository.NewChatSessionRepository(deps.Store)
	grantRepo := repository.NewAccessGrantRepository(deps.Store)
	messageRepo := repository.NewMessageRepository(deps.Store, cfg.Transcript.Scope, cfg.Transcript.UniqueKeys)
	exportRepo := repository.NewExportRepository(deps.Store)

	transcripts := service.NewTranscriptService(messageRepo, grantRepo, clientRepo, cfg.Transcript, log)

	return HandlerSet{
		log:         log,
		cfg:         cfg,
		db:          deps.DB,
		cache:       deps.Cache,
		verifier:    deps.Verifier,
		profiles:    service.NewProfileService(profileRepo, log),
		registry:    service.NewRegistryService(avatarRepo, clientRepo, log),
		invites:     service.NewInvitationService(inviteRepo, clientRepo, grantRepo, cfg.Invites, log),
		sessions:    service.NewSessionService(sessionRepo, grantRepo, log),
		transcripts: transcripts,
		chat:        service.NewChatService(transcripts, avatarRepo, clientRepo, deps.Generator, cfg.Generation.History, log),
		exports:     service.NewExportService(exportRepo, transcripts, deps.Objects, deps.Cache, cfg, log),
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	idempotent := middleware.Idempotency(h.cache, h.cfg.Idempotency.TTL, h.log)

	v1 := router.Group("/v1")
	authed := v1.Group("")
	authed.Use(middleware.Auth(h.verifier))
	authed.POST("/user/init", h.InitUser)

	member := authed.Group("")
	member.Use(middleware.LoadProfile(h.profiles))
	{
		member.GET("/user/profile", h.GetProfile)
		member.PUT("/user/profile", h.UpdateProfile)

		member.POST("/invites/accept", idempotent, h.AcceptInvite)

		member.GET("/user/chats", h.ListChats)
		member.POST("/user/chats", h.CreateChat)
		member.DELETE("/user/chats/:clientId/:avatarId", h.DeleteChat)

		member.POST("/chat", idempotent, h.Chat)
		member.GET("/chat/history", h.ChatHistory)
		member.POST("/chat/message", idempotent, h.SaveMessage)
	}

	therapist := member.Group("")
	therapist.Use(middleware.RequireRoles(models.RoleTherapist))
	{
		therapist.GET("/avatars", h.ListAvatars)
		therapist.POST("/avatars", h.CreateAvatar)
		therapist.GET("/avatars/:avatarId", h.GetAvatar)
		therapist.PUT("/avatars/:avatarId", h.UpdateAvatar)
		therapist.DELETE("/avatars/:avatarId", h.DeleteAvatar)

		therapist.GET("/clients", h.ListClients)
		therapist.POST("/clients", h.CreateClient)
		therapist.GET("/clients/:clientId", h.GetClient)
		therapist.PUT("/clients/:clientId", h.UpdateClient)
		therapist.DELETE("/clients/:clientId", h.DeleteClient)

		therapist.GET("/invites", h.ListInvites)
		therapist.POST("/invites", idempotent, h.CreateInvite)

		therapist.POST("/exports", h.CreateExport)
		therapist.GET("/exports/:exportId", h.GetExport)
	}
}

// respondError writes the stable error code for err. Internal details of 5xx errors stay
// in the log.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	code, status := apperr.Classify(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
		message = http.StatusText(status)
	}
	c.JSON(status, gin.H{"error": code, "message": message})
}

func (h HandlerSet) bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return false
	}
	return true
}

func caller(c *gin.Context) service.Caller {
	profile, _ := middleware.CurrentProfile(c)
	return service.Caller{SubjectID: profile.SubjectID, Role: profile.Role}
}
