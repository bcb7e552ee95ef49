package models

import (
	"github.com/google/uuid"
)

// BaseModel provides the primary key shared by all models.
type BaseModel struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`
}

// VersionedModel adds the optimistic-lock version. Writers bump it on every
// update and guard the update with the version they read.
type VersionedModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}
