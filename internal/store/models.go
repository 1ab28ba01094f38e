package store

import "time"

// Request is a support request submitted from the chat front-end. All
// submitter fields are optional free text; missing values are stored as
// empty strings so downstream formatting stays stable.
type Request struct {
	ID           int64
	Submitter    string
	Phone        string
	Email        string
	Organization string
	Branch       string
	Device       string
	Problem      string
	Comment      string
	ChatID       string
	CreatedAt    time.Time
	Deleted      bool
}

// Reply is an operator answer relayed back to the originating chat. The
// chat id is copied from the parent request at write time, so the delivery
// target survives a later soft delete of the request. Replies are
// append-only and never mutated.
type Reply struct {
	ID        int64
	RequestID int64
	ChatID    string
	Text      string
	CreatedAt time.Time
}
