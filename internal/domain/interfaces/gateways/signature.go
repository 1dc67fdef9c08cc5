package gateways

import "github.com/ochairo/tagship/internal/domain/entities"

// DetachedSigner produces armored detached signatures for release sidecars
type DetachedSigner interface {
	SignDetached(key *entities.Credential, body []byte) ([]byte, error)
}
