package remotes

import "log"

// Registry is the interface both Remotes and Empty satisfy, so daemon
// wiring can swap in Empty for standalone operation without the rest of
// the node caring which it has (§4.4 "Empty specialization").
type Registry interface {
	Add(host string, port int) error
	Remove(host string, port int) error
	Exists(host string, port int) bool
	All() []Remote
	Error(host string, port int) error
	Errors(host string, port int) int
	Rescore(host string, port, score int) error
	Iterate(logger *log.Logger, fn IteratorFn)
}

// Empty is a Registry that is always empty and never mutates, used for
// "standalone" operation (§4.4 "Empty specialization"). Iteration is a
// no-op.
type Empty struct{}

func (Empty) Add(string, int) error          { return nil }
func (Empty) Remove(string, int) error       { return nil }
func (Empty) Exists(string, int) bool        { return false }
func (Empty) All() []Remote                  { return nil }
func (Empty) Error(string, int) error        { return nil }
func (Empty) Errors(string, int) int         { return 0 }
func (Empty) Rescore(string, int, int) error { return nil }
func (Empty) Iterate(*log.Logger, IteratorFn) {}

var (
	_ Registry = (*Remotes)(nil)
	_ Registry = Empty{}
)
