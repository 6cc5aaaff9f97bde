package models

import "time"

// Replica is the server's single stored copy of one user's named file.
//
// Content is ciphertext. ContentHash is the digest of the plaintext and is
// what conflict detection compares. Version starts at 1 and grows by one
// with every accepted content change.
type Replica struct {
	ID           string
	UserID       string
	Filename     string
	Content      []byte
	ContentHash  string
	FileType     string
	Size         int64
	LastModified time.Time
	DeviceID     string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// DeviceName is resolved by listing queries only.
	DeviceName string
}

// PlainFile is a decrypted replica as handed back to callers.
type PlainFile struct {
	Filename     string
	Content      string
	ContentHash  string
	FileType     string
	Size         int64
	LastModified time.Time
	Version      int64
	DeviceID     string
	DeviceName   string
	UpdatedAt    time.Time
}

// ProposedFile is one write a device asks the server to accept.
// LastModified is the client's own modification time of the content.
type ProposedFile struct {
	Filename     string
	Content      string
	FileType     string
	LastModified time.Time
}

// Size is the plaintext size in bytes.
func (p ProposedFile) Size() int64 {
	return int64(len(p.Content))
}
