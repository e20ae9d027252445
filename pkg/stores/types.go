package stores

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/bmi/pkg/bmi"
)

// ErrNotFound is returned when a checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is a persisted snapshot of a model instance.
type Checkpoint struct {
	ID           string             `json:"id"`
	Component    string             `json:"component"`
	ModelVersion string             `json:"model_version,omitempty"`
	StartTime    float64            `json:"start_time"`
	EndTime      float64            `json:"end_time"`
	CurrentTime  float64            `json:"current_time"`
	TimeStep     float64            `json:"time_step"`
	TimeUnits    string             `json:"time_units"`
	Attributes   map[string]string  `json:"attributes"`
	KernelState  []byte             `json:"kernel_state,omitempty"` // opaque, owned by the model kernel
	Variables    []VariableSnapshot `json:"variables,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Variable returns the snapshot of the named variable.
func (c *Checkpoint) Variable(name string) (*VariableSnapshot, bool) {
	for i := range c.Variables {
		if c.Variables[i].Name == name {
			return &c.Variables[i], true
		}
	}
	return nil, false
}

// VariableSnapshot holds the values of one variable at checkpoint time.
type VariableSnapshot struct {
	Name   string     `json:"name"`
	Shape  []int      `json:"shape"`
	Values bmi.Values `json:"-"`
}

// CheckpointSummary is the listing form of a checkpoint, without payloads.
type CheckpointSummary struct {
	ID          string    `json:"id"`
	Component   string    `json:"component"`
	CurrentTime float64   `json:"current_time"`
	Variables   int       `json:"variables"`
	CreatedAt   time.Time `json:"created_at"`
}

// CheckpointStore persists model checkpoints.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error)
	LatestCheckpoint(ctx context.Context, component string) (*Checkpoint, error)
	ListCheckpoints(ctx context.Context, component string, limit int) ([]CheckpointSummary, error)
	DeleteCheckpoint(ctx context.Context, id string) error
	PruneCheckpoints(ctx context.Context, component string, keep int) (int64, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

var _ CheckpointStore = (*SQLiteStore)(nil)
