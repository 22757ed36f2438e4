package sessions

import "time"

// Session records a successful admin login. The token is the sole
// credential; Authenticated is always true while the entry exists.
type Session struct {
	Token         string    `json:"token"`
	Username      string    `json:"username"`
	Authenticated bool      `json:"authenticated"`
	CreatedAt     time.Time `json:"createdAt"`
}
