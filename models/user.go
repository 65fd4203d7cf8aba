package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an operator account for the authoring and admin surfaces.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         string             `bson:"role" json:"role"` // user, admin, superadmin
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// LoginRequest is the credentials payload for /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Job is the observability view of one queue entry, produced for the admin
// surface from asynq task info.
type Job struct {
	ID           string     `json:"id"`
	Data         JobData    `json:"data"`
	State        string     `json:"state"`
	AttemptsMade int        `json:"attempts_made"`
	ProcessedOn  *time.Time `json:"processed_on,omitempty"`
	FinishedOn   *time.Time `json:"finished_on,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	Delay        int64      `json:"delay"` // milliseconds until due, 0 when due
	FailedReason string     `json:"failed_reason,omitempty"`
}

// JobData is the decoded publish payload carried by a queue job.
type JobData struct {
	PostID string `json:"postId"`
	UserID string `json:"userId"`
}

// QueueStats aggregates asynq queue buckets for the admin surface.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
	Total     int `json:"total"`
}
