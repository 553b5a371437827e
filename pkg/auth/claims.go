package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gymdesk-billing/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	OwnerID uuid.UUID
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims is the typed JWT issued by the accounts service. OwnerID
// identifies the gym whose subscription gates access.
type AccessTokenClaims struct {
	UserID  uuid.UUID       `json:"user_id"`
	OwnerID uuid.UUID       `json:"owner_id"`
	Role    enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
