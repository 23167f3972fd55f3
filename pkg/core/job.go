// Package core provides the domain models and interfaces shared by the
// lienharvest packages.
package core

import (
	"time"
)

// JobStatus represents the current state of a discovery job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusFailed     JobStatus = "failed"
	StatusAbandoned  JobStatus = "abandoned" // Exhausted retries, given up
)

// Job is one discovered filing waiting for (or through) detail extraction.
//
// Fingerprint carries a unique index so a filing is enqueued at most once no
// matter how many discovery scans report it. LockedUntil records lease
// expiry: while Status is "processing" it bounds the claim, and after a
// failure it holds the backoff deadline before the job is claimable again.
type Job struct {
	ID           string     `gorm:"primaryKey;size:36"`
	Fingerprint  string     `gorm:"uniqueIndex;size:64;not null"`
	Site         string     `gorm:"index;size:64;not null"`
	FilingNumber string     `gorm:"size:64;not null"`
	FilingDate   string     `gorm:"size:10;not null"`
	Status       JobStatus  `gorm:"index;size:20;default:'queued'"`
	Attempts     int        `gorm:"default:0"`
	LastError    string     `gorm:"type:text"`
	LockedBy     string     `gorm:"size:36"`
	LockedUntil  *time.Time `gorm:"index"`
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`
}

// Terminal reports whether the job can never be claimed again.
func (j *Job) Terminal() bool {
	return j.Status == StatusDone || j.Status == StatusAbandoned
}
