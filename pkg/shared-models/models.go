package datamodels

import (
	"time"

	"github.com/google/uuid"
)

// Request asks for one module run on one host.
type Request struct {
	ExecutionUID uuid.UUID `json:"exuid" bson:"exuid"`
	Host         string    `json:"host" bson:"host" validate:"required"`
	Module       string    `json:"module,omitempty" bson:"module,omitempty"`
	Arguments    string    `json:"arguments,omitempty" bson:"arguments,omitempty"`
}

// Record is the stored outcome of a Request.
type Record struct {
	ExecutionUID uuid.UUID      `json:"exuid" bson:"-"`
	Host         string         `json:"host" bson:"host"`
	Module       string         `json:"module" bson:"module"`
	Arguments    string         `json:"arguments" bson:"arguments"`
	Result       map[string]any `json:"result,omitempty" bson:"result,omitempty"`
	RC           int            `json:"rc" bson:"rc"`
	Stdout       string         `json:"stdout,omitempty" bson:"stdout,omitempty"`
	Error        string         `json:"error,omitempty" bson:"error,omitempty"`
	Started      time.Time      `json:"started" bson:"started"`
	Finished     time.Time      `json:"finished" bson:"finished"`
}

func (r Record) Failed() bool {
	return r.Error != ""
}
