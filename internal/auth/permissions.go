package auth

import "magazine/internal/model"

// Operation names a protected API action.
type Operation string

const (
	OpUsersList      Operation = "users.list"
	OpUsersCreate    Operation = "users.create"
	OpUsersDelete    Operation = "users.delete"
	OpUsersProfile   Operation = "users.profile"
	OpUsersUpdate    Operation = "users.update"
	OpRolesCreate    Operation = "roles.create"
	OpFacultyCreate  Operation = "faculties.create"
	OpEventsList     Operation = "events.list"
	OpEventsDetail   Operation = "events.detail"
	OpEventsSearch   Operation = "events.search"
	OpEventsCreate   Operation = "events.create"
	OpEventsUpdate   Operation = "events.update"
	OpEventsDelete   Operation = "events.delete"
	OpEventsDownload Operation = "events.download"

	OpContribCreate   Operation = "contributions.create"
	OpContribList     Operation = "contributions.list"
	OpContribRequests Operation = "contributions.requests"
	OpContribAccept   Operation = "contributions.accept"
	OpContribReject   Operation = "contributions.reject"
	OpContribUpdate   Operation = "contributions.update"
	OpContribDelete   Operation = "contributions.delete"
	OpContribReact    Operation = "contributions.react"
	OpContribDownload Operation = "contributions.download"

	OpCommentsCreate Operation = "comments.create"
	OpCommentsList   Operation = "comments.list"
	OpCommentsReact  Operation = "comments.react"
	OpCommentsDelete Operation = "comments.delete"

	OpReportsView Operation = "reports.view"
)

// anyRole marks operations open to every authenticated caller.
var anyRole = []string{model.RoleAdmin, model.RoleStudent, model.RoleManager, model.RoleCoordinator, model.RoleGuest}

// Permissions is the single allow-list consulted by the middleware.
var Permissions = map[Operation][]string{
	OpUsersList:      {model.RoleAdmin},
	OpUsersCreate:    {model.RoleAdmin},
	OpUsersDelete:    {model.RoleAdmin},
	OpRolesCreate:    {model.RoleAdmin},
	OpFacultyCreate:  {model.RoleAdmin},
	OpUsersProfile:   anyRole,
	OpUsersUpdate:    anyRole,
	OpEventsList:     anyRole,
	OpEventsDetail:   anyRole,
	OpEventsSearch:   anyRole,
	OpEventsCreate:   {model.RoleAdmin, model.RoleCoordinator},
	OpEventsUpdate:   {model.RoleAdmin, model.RoleCoordinator},
	OpEventsDelete:   {model.RoleAdmin, model.RoleCoordinator},
	OpEventsDownload: {model.RoleAdmin, model.RoleManager},

	OpContribCreate:   {model.RoleStudent},
	OpContribList:     {model.RoleManager, model.RoleCoordinator, model.RoleStudent},
	OpContribRequests: {model.RoleCoordinator},
	OpContribAccept:   {model.RoleCoordinator},
	OpContribReject:   {model.RoleCoordinator},
	OpContribUpdate:   {model.RoleStudent},
	OpContribDelete:   {model.RoleStudent, model.RoleCoordinator},
	OpContribReact:    {model.RoleStudent},
	OpContribDownload: {model.RoleManager},

	OpCommentsCreate: {model.RoleStudent},
	OpCommentsList:   anyRole,
	OpCommentsReact:  {model.RoleStudent},
	OpCommentsDelete: {model.RoleStudent},

	OpReportsView: {model.RoleManager, model.RoleGuest},
}

// Allowed reports whether role may perform op. Unknown operations are denied.
func Allowed(op Operation, role string) bool {
	for _, r := range Permissions[op] {
		if r == role {
			return true
		}
	}
	return false
}
