// Package httpapi exposes the magazine services over HTTP with gin.
package httpapi

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"magazine/internal/assets"
	"magazine/internal/auth"
	"magazine/internal/contribution"
	"magazine/internal/event"
	"magazine/internal/model"
	"magazine/internal/report"
	"magazine/internal/user"
)

type UserService interface {
	Login(ctx context.Context, email, password string) (user.Session, error)
	Refresh(ctx context.Context, token string) (user.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	CreateUser(ctx context.Context, creatorID string, in user.CreateInput) (model.User, error)
	Profile(ctx context.Context, id string) (model.User, error)
	UpdateProfile(ctx context.Context, id string, in user.ProfileInput, picture *assets.Upload) (model.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.User, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
	CreateRole(ctx context.Context, name string) (model.Role, error)
	ListFaculties(ctx context.Context) ([]model.Faculty, error)
	CreateFaculty(ctx context.Context, name string) (model.Faculty, error)
}

type EventService interface {
	Create(ctx context.Context, creatorID string, in event.Input) (model.Event, error)
	Update(ctx context.Context, actorID, role, id string, in event.Input) (model.Event, error)
	Delete(ctx context.Context, actorID, role, id string) error
	Get(ctx context.Context, id string) (model.Event, error)
	List(ctx context.Context, facultyID string) ([]model.Event, error)
	Search(ctx context.Context, name string) ([]model.Event, error)
	Detail(ctx context.Context, id string) (model.EventDetail, error)
}

type ContributionService interface {
	Submit(ctx context.Context, contributorID, eventID, content string, uploads []assets.Upload) (model.Contribution, error)
	ListAccepted(ctx context.Context, eventID string) (contribution.Listing, error)
	ListPending(ctx context.Context, coordinatorID string) ([]model.Contribution, error)
	Accept(ctx context.Context, id, coordinatorID string) (model.Contribution, error)
	Reject(ctx context.Context, id, coordinatorID string) error
	Update(ctx context.Context, id, contributorID, content string, uploads []assets.Upload) (model.Contribution, error)
	Delete(ctx context.Context, id, actorID, role string) error
	React(ctx context.Context, id string, counter model.Counter, delta int) (int, error)
	ArchivePaths(ctx context.Context, eventID string, acceptedOnly bool) ([]string, error)
}

type CommentService interface {
	Create(ctx context.Context, commenterID, contributionID, content string) (model.Comment, error)
	List(ctx context.Context, contributionID string) ([]model.Comment, error)
	React(ctx context.Context, id string, counter model.Counter) (int, error)
	Delete(ctx context.Context, id, actorID string) error
}

type ReportService interface {
	Build(ctx context.Context) (report.Report, error)
}

// Exporter streams an event's uploads as a zip archive.
type Exporter interface {
	Export(ctx context.Context, eventID string, w io.Writer, selector []string) (int, error)
}

// Deps is everything the router needs.
type Deps struct {
	Signer        *auth.Signer
	Users         UserService
	Events        EventService
	Contributions ContributionService
	Comments      CommentService
	Reports       ReportService
	Exporter      Exporter
	// MaxUploadBytes is the per-file ceiling used to bound multipart bodies.
	MaxUploadBytes int64
}

type handler struct {
	Deps
}

// Register mounts every API route on r.
func Register(r gin.IRouter, d Deps) {
	h := &handler{Deps: d}
	need := func(op auth.Operation) gin.HandlerFunc { return auth.Require(d.Signer, op) }

	users := r.Group("/users")
	users.POST("/login", h.login)
	users.POST("/refresh", h.refresh)
	users.POST("/forgot-password", h.forgotPassword)
	users.GET("/", need(auth.OpUsersList), h.listUsers)
	users.POST("/create-user", need(auth.OpUsersCreate), h.createUser)
	users.GET("/profile", need(auth.OpUsersProfile), h.profile)
	users.PUT("/update", need(auth.OpUsersUpdate), h.updateProfile)
	users.DELETE("/:id", need(auth.OpUsersDelete), h.deleteUser)

	roles := r.Group("/roles")
	roles.GET("/", h.listRoles)
	roles.POST("/", need(auth.OpRolesCreate), h.createRole)

	faculties := r.Group("/faculties")
	faculties.GET("/", h.listFaculties)
	faculties.POST("/", need(auth.OpFacultyCreate), h.createFaculty)

	events := r.Group("/events")
	events.GET("/", need(auth.OpEventsList), h.listEvents)
	events.POST("/createEvent", need(auth.OpEventsCreate), h.createEvent)
	events.GET("/updateEvent/:id", need(auth.OpEventsUpdate), h.getEvent)
	events.PUT("/updateEvent/:id", need(auth.OpEventsUpdate), h.updateEvent)
	events.DELETE("/deleteEvent/:id", need(auth.OpEventsDelete), h.deleteEvent)
	events.GET("/detail/:id", need(auth.OpEventsDetail), h.eventDetail)
	events.POST("/searchByName", need(auth.OpEventsSearch), h.searchEvents)
	events.GET("/download/:id", need(auth.OpEventsDownload), h.downloadEvent)

	contributions := r.Group("/contributions")
	contributions.POST("/create", need(auth.OpContribCreate), h.submitContribution)
	contributions.GET("/event/:id", need(auth.OpContribList), h.listContributions)
	contributions.GET("/requests", need(auth.OpContribRequests), h.pendingContributions)
	contributions.PUT("/accept/:id", need(auth.OpContribAccept), h.acceptContribution)
	contributions.DELETE("/reject/:id", need(auth.OpContribReject), h.rejectContribution)
	contributions.PUT("/update/:id", need(auth.OpContribUpdate), h.updateContribution)
	contributions.DELETE("/delete/:id", need(auth.OpContribDelete), h.deleteContribution)
	contributions.PUT("/like/:id", need(auth.OpContribReact), h.reactContribution(model.CounterLike, 1))
	contributions.PUT("/unlike/:id", need(auth.OpContribReact), h.reactContribution(model.CounterLike, -1))
	contributions.PUT("/dislike/:id", need(auth.OpContribReact), h.reactContribution(model.CounterDislike, 1))
	contributions.PUT("/undislike/:id", need(auth.OpContribReact), h.reactContribution(model.CounterDislike, -1))
	contributions.GET("/download/:id", need(auth.OpContribDownload), h.downloadContributions)

	comments := r.Group("/comments")
	comments.POST("/create", need(auth.OpCommentsCreate), h.createComment)
	comments.GET("/:contributionId", need(auth.OpCommentsList), h.listComments)
	comments.PUT("/like/:commentId", need(auth.OpCommentsReact), h.reactComment(model.CounterLike))
	comments.PUT("/dislike/:commentId", need(auth.OpCommentsReact), h.reactComment(model.CounterDislike))
	comments.DELETE("/delete/:id", need(auth.OpCommentsDelete), h.deleteComment)

	r.GET("/reports/", need(auth.OpReportsView), h.report)
}

// caller returns the claims attached by auth.Require.
func caller(c *gin.Context) auth.Claims {
	claims, _ := auth.ClaimsFrom(c)
	return claims
}
