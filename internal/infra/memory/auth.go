package memory

import (
	"context"

	"school-quiz-service/internal/domain"
)

// StaticAuthenticator resolves bearer tokens from a fixed table. It stands in
// for the external auth collaborator in demos and tests; production plugs a
// real implementation behind app.Authenticator.
type StaticAuthenticator struct {
	identities map[string]domain.Identity
}

func NewStaticAuthenticator(tokens map[string]domain.Identity) *StaticAuthenticator {
	return &StaticAuthenticator{identities: tokens}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (domain.Identity, error) {
	if id, ok := a.identities[token]; ok && token != "" {
		return id, nil
	}
	return domain.Identity{}, domain.ErrUnauthenticated
}
