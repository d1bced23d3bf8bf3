// Package checkpoint snapshots task progress so an interrupted task can be
// resumed, and lists or reloads those snapshots later.
//
// Snapshots are JSON documents addressed by URI. The Manager is agnostic of
// where they live; a Store owns one URI scheme:
//
//	file://<dir>/<task>_<unixnano>_<rand>.json   (FileStore)
//	redis://<prefix>:<task>_<unixnano>_<rand>    (RedisStore)
package checkpoint

import (
	"context"
	"regexp"
	"strings"

	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// Store persists checkpoint documents.
type Store interface {
	// URI returns the address the document called name would be stored at.
	URI(taskID, name string) string

	// Write stores data at uri and returns the number of bytes written.
	Write(ctx context.Context, uri string, data []byte) (int64, error)

	// Read returns the document at uri or ErrCheckpointNotFound.
	Read(ctx context.Context, uri string) ([]byte, error)

	// List returns every document stored for taskID, in no particular order.
	List(ctx context.Context, taskID string) ([]Entry, error)
}

// Entry is a stored document as reported by Store.List.
type Entry struct {
	URI       string
	SizeBytes int64
}

// nameSuffix matches the part of a document name that follows "<task>_".
var nameSuffix = regexp.MustCompile(`^\d+_[0-9a-f]{8}$`)

// belongsTo reports whether the document called name was written for taskID.
// A plain prefix check is not enough: "task_1_..." starts with "task_".
func belongsTo(name, taskID string) bool {
	rest, ok := strings.CutPrefix(name, taskID+"_")
	return ok && nameSuffix.MatchString(rest)
}

// validateTaskID rejects ids that could escape a store's namespace.
func validateTaskID(taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return tgerrors.Wrap(tgerrors.ErrInvalidArgument, "task id is required")
	}
	if strings.ContainsAny(taskID, `/\:`) || strings.Contains(taskID, "..") {
		return tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "task id %q contains path characters", taskID)
	}
	return nil
}
