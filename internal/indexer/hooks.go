package indexer

import "time"

// Hooks receives pipeline activity, typically for metrics.
type Hooks interface {
	BlockEmitted(chain string, took time.Duration)
	DecodeError(chain, kind string)
	InclusionForwarded(chain string)
	PipelineStopped(chain string)
}

type nopHooks struct{}

func (nopHooks) BlockEmitted(string, time.Duration) {}
func (nopHooks) DecodeError(string, string)         {}
func (nopHooks) InclusionForwarded(string)          {}
func (nopHooks) PipelineStopped(string)             {}
