package videos

import (
	"github.com/google/uuid"

	"github.com/clipforge/backend/internal/models"
)

// Identity describes the authenticated caller for capability checks.
type Identity struct {
	ID         uuid.UUID
	Role       models.Role
	TrustLevel int
}

// Authorizer decides whether a caller may create upload sessions. Supplied by
// the caller at construction; handlers never reach into policy themselves.
type Authorizer interface {
	CanUploadVideo(id Identity) bool
}

// TrustLevelPolicy allows staff unconditionally and other callers at or above
// a minimum trust level.
type TrustLevelPolicy struct {
	MinTrustLevel int
}

// CanUploadVideo implements Authorizer.
func (p TrustLevelPolicy) CanUploadVideo(id Identity) bool {
	if id.Role == models.RoleAdmin || id.Role == models.RoleModerator {
		return true
	}
	return id.TrustLevel >= p.MinTrustLevel
}
