package model

import "time"

type Transport string

const (
	TransportPush Transport = "push"
	TransportPoll Transport = "poll"
)

// DeliverySession exists only while a job is unresolved. At most one
// session is active per job.
type DeliverySession struct {
	JobID     string
	Transport Transport
	Attempts  int
	CreatedAt time.Time
}
