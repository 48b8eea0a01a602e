package sessions

import (
	"time"

	"github.com/jrsteele09/go-workflow-bridge/auth"
)

// Repo holds authorization sessions between BeginAuthorization and the
// callback, keyed by state.
type Repo interface {
	Upsert(session *auth.Session) error
	Get(state string) (*auth.Session, error)
	// Take returns the session and removes it, so a state is redeemed at most once.
	Take(state string) (*auth.Session, error)
	Delete(state string) error
	DeleteExpired(now time.Time) int
}
