package common

import (
	"github.com/google/uuid"
)

// NewTaskID generates a unique task ID with the "task_" prefix. Used as a
// fallback when the export API does not return an id of its own.
// Format: task_<uuid>
func NewTaskID() string {
	return "task_" + uuid.New().String()
}
