package store

// Task is a unit of notifier work published by a committed transaction.
// Params is a flat string map; the job name selects the handler.
type Task struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Params map[string]string `json:"params"`
}
