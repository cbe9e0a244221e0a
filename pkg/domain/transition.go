package domain

import (
	"fmt"
	"time"
)

// Transition defines a rule to move from one action to another.
type Transition struct {
	From string `json:"from"`
	To   string `json:"to"`

	// Condition must be true for the transition to be taken.
	// The zero value behaves like Default.
	Condition Condition `json:"condition"`
}

// Edge is shorthand for building a Transition.
func Edge(from, to string, cond Condition) Transition {
	return Transition{From: from, To: to, Condition: cond}
}

func (t Transition) String() string {
	return fmt.Sprintf("%s -> %s [%s]", t.From, t.To, t.Condition)
}

// LatestSequence asks a tracking store for the highest recorded sequence.
const LatestSequence = -1

// Position locates an application in its execution history.
type Position struct {
	// Action is the last executed action, empty before the first step.
	Action string `json:"action"`
	// Sequence counts committed steps.
	Sequence int `json:"sequence"`
}

// Lineage points at the record an application was forked from.
type Lineage struct {
	AppID    string `json:"app_id"`
	Sequence int    `json:"sequence"`
}

// Record is what a tracking store persists after every step.
type Record struct {
	AppID        string    `json:"app_id"`
	PartitionKey string    `json:"partition_key,omitempty"`
	Position     Position  `json:"position"`
	Next         string    `json:"next,omitempty"` // action to run on resume, empty when terminal
	State        State     `json:"state"`
	Parent       *Lineage  `json:"parent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
