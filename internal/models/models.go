package models

import "time"

// File represents file metadata stored in TiDB
type File struct {
	ID             string     `json:"id"`
	StoredName     string     `json:"storedName"`
	FileName       string     `json:"fileName"`
	Type           string     `json:"type"`
	Size           int64      `json:"size"`
	Checksum       string     `json:"checksum,omitempty"`
	OwnerID        string     `json:"userId"`
	Anyone         bool       `json:"anyone"`
	Shared         []Share    `json:"shared"`
	FolderID       *string    `json:"folderId,omitempty"`
	IsTrashed      bool       `json:"isTrashed"`
	LastAccessTime *time.Time `json:"lAccess,omitempty"`
	LastModifiedBy string     `json:"lName,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Share is one entry of a file's share list
type Share struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Limit is the singleton storage ceiling record
type Limit struct {
	ID        int64     `json:"id"`
	TotalMB   int64     `json:"total"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Bytes converts the ceiling to bytes
func (l *Limit) Bytes() int64 {
	return l.TotalMB * 1024 * 1024
}

// User is the part of an account record this service reads
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
