package bulk

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Command is an immutable request to run an action over every document
// matched by a query. It is created once by the submitter and referenced by
// id from every status and bucket derived from it.
type Command struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Query  string `json:"query"`

	Username   string `json:"username,omitempty"`
	Repository string `json:"repository,omitempty"`

	// BucketSize overrides the action's default bucket size when > 0; zero or
	// negative means the action default.
	BucketSize int `json:"bucketSize,omitempty"`

	// BatchSize is carried to the action workers, which commit per batch.
	BatchSize int `json:"batchSize,omitempty"`

	// Scroller names the scroll strategy; empty means the deployment default.
	Scroller string `json:"scroller,omitempty"`

	// QueryLimit stops scrolling after that many documents when > 0.
	QueryLimit int64 `json:"queryLimit,omitempty"`

	// Params are opaque action parameters. An empty map and nil are the
	// same command; both decode as nil.
	Params map[string]string `json:"params,omitempty"`
}

// Validate checks the fields a command cannot be scrolled without.
func (c *Command) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Action, validation.Required),
		validation.Field(&c.Query, validation.Required),
		validation.Field(&c.QueryLimit, validation.Min(int64(0))),
	)
}
